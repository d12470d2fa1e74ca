package rules

import (
	"conveyance/internal/record"
)

func verifyCreateInstruction(_ *Validator, c *check, cmd Command, p Proposal) {
	none(c, consumedRefsOf[record.ConveyancerInstruction](p), "consumed instruction")
	out, ok := one(c, producedOf[record.ConveyancerInstruction](p), "produced instruction")
	if !ok {
		return
	}

	c.requiref(out.TitleIssuer != out.Conveyancer,
		"CreateInstruction: conveyancer must differ from the issuer")
	c.requiref(out.User.Identity > 0,
		"CreateInstruction: instructed user's identity must be confirmed")
	c.requiref(!out.TitleIssuer.IsZero() && !out.Conveyancer.IsZero(),
		"CreateInstruction: issuer and conveyancer are required")
	c.requiref(out.TitleNumber != "",
		"CreateInstruction: title number is required")

	declaredSigner(c, cmd, out.TitleIssuer, "issuer")
}

// AcceptInstruction consumes the instruction; it only ever appears alongside
// RequestIssuance, which produces the issuance request in the same bundle.
func verifyAcceptInstruction(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.ConveyancerInstruction](p), "consumed instruction")
	if !ok {
		return
	}
	none(c, producedOf[record.ConveyancerInstruction](p), "produced instruction")

	if !hasCommand(p, CmdRequestIssuance) {
		c.fail("AcceptInstruction: must be accompanied by RequestIssuance")
	}

	declaredSigner(c, cmd, in.Conveyancer, "conveyancer")
}

func hasCommand(p Proposal, t CommandType) bool {
	for _, cmd := range p.Commands {
		if cmd.Type == t {
			return true
		}
	}
	return false
}
