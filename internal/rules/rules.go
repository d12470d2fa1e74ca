// Package rules is the transition validator: one declarative rule table per
// record kind, evaluated against a proposed bundle of consumed and produced
// versions. Validation is pure and deterministic; a proposal passes only if
// every rule of every declared command passes, and a command with no rule
// table rejects the whole proposal.
package rules

import (
	"fmt"
	"strings"

	"conveyance/internal/record"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
)

// CommandType names a procedure a proposal claims to perform.
type CommandType string

const (
	CmdCreateInstruction CommandType = "CreateInstruction"
	CmdAcceptInstruction CommandType = "AcceptInstruction"

	CmdRequestIssuance     CommandType = "RequestIssuance"
	CmdApproveIssuance     CommandType = "ApproveIssuance"
	CmdRejectAlreadyIssued CommandType = "RejectAlreadyIssued"
	CmdIssuanceFailed      CommandType = "IssuanceFailed"
	CmdRetryAfterFailure   CommandType = "RetryAfterFailure"

	CmdRequestTransfer        CommandType = "RequestTransfer"
	CmdAssignBuyerConveyancer CommandType = "AssignBuyerConveyancer"
	CmdTransferTitle          CommandType = "TransferTitle"

	CmdRequestDischarge CommandType = "RequestDischarge"
	CmdConsentDischarge CommandType = "ConsentDischarge"
	CmdRequestNewCharge CommandType = "RequestNewCharge"
	CmdConsentNewCharge CommandType = "ConsentNewCharge"

	CmdCreateAgreement  CommandType = "CreateAgreement"
	CmdApproveAgreement CommandType = "ApproveAgreement"
	CmdSellerSign       CommandType = "SellerSign"
	CmdBuyerSign        CommandType = "BuyerSign"

	CmdRequestPayment CommandType = "RequestPayment"
	CmdConfirmPayment CommandType = "ConfirmPayment"
)

// Command pairs a procedure with the parties it declares must sign.
type Command struct {
	Type    CommandType
	Signers []id.PartyID
}

// Proposal is the bundle under validation.
type Proposal struct {
	Commands []Command
	Consumed []record.StateAndRef
	Produced []record.State

	// Signers is the set of parties whose signatures accompany the bundle.
	Signers []id.PartyID
}

// Rejection aggregates every failed rule for a proposal. Nothing about a
// rejected proposal is committed.
type Rejection struct {
	Reasons []string
}

func (r *Rejection) Error() string {
	return "transition rejected: " + strings.Join(r.Reasons, "; ")
}

// AsRejection unwraps err into a Rejection if it is one.
func AsRejection(err error) (*Rejection, bool) {
	r, ok := err.(*Rejection)
	return r, ok
}

type ruleFunc func(v *Validator, c *check, cmd Command, p Proposal)

// ruleTable maps each command to its rule set and the record kinds the
// command is entitled to touch. States of a kind no declared command touches
// make the proposal fail closed.
var ruleTable = map[CommandType]struct {
	kinds []record.Kind
	rules ruleFunc
}{
	CmdCreateInstruction: {kinds: []record.Kind{record.KindInstruction}, rules: verifyCreateInstruction},
	CmdAcceptInstruction: {kinds: []record.Kind{record.KindInstruction}, rules: verifyAcceptInstruction},

	CmdRequestIssuance:     {kinds: []record.Kind{record.KindInstruction, record.KindRequest}, rules: verifyRequestIssuance},
	CmdApproveIssuance:     {kinds: []record.Kind{record.KindRequest, record.KindTitle, record.KindCharges}, rules: verifyApproveIssuance},
	CmdRejectAlreadyIssued: {kinds: []record.Kind{record.KindRequest}, rules: verifyRejectAlreadyIssued},
	CmdIssuanceFailed:      {kinds: []record.Kind{record.KindRequest}, rules: verifyIssuanceFailed},
	CmdRetryAfterFailure:   {kinds: []record.Kind{record.KindRequest}, rules: verifyRetryAfterFailure},

	CmdRequestTransfer:        {kinds: []record.Kind{record.KindTitle}, rules: verifyRequestTransfer},
	CmdAssignBuyerConveyancer: {kinds: []record.Kind{record.KindTitle, record.KindCharges}, rules: verifyAssignBuyerConveyancer},
	CmdTransferTitle:          {kinds: []record.Kind{record.KindTitle, record.KindCharges, record.KindAgreement, record.KindPayment}, rules: verifyTransferTitle},

	CmdRequestDischarge: {kinds: []record.Kind{record.KindCharges}, rules: verifyRequestDischarge},
	CmdConsentDischarge: {kinds: []record.Kind{record.KindCharges}, rules: verifyConsentDischarge},
	CmdRequestNewCharge: {kinds: []record.Kind{record.KindCharges}, rules: verifyRequestNewCharge},
	CmdConsentNewCharge: {kinds: []record.Kind{record.KindCharges}, rules: verifyConsentNewCharge},

	CmdCreateAgreement:  {kinds: []record.Kind{record.KindAgreement}, rules: verifyCreateAgreement},
	CmdApproveAgreement: {kinds: []record.Kind{record.KindAgreement}, rules: verifyApproveAgreement},
	CmdSellerSign:       {kinds: []record.Kind{record.KindAgreement}, rules: verifySellerSign},
	CmdBuyerSign:        {kinds: []record.Kind{record.KindAgreement}, rules: verifyBuyerSign},

	CmdRequestPayment: {kinds: []record.Kind{record.KindPayment}, rules: verifyRequestPayment},
	CmdConfirmPayment: {kinds: []record.Kind{record.KindPayment}, rules: verifyConfirmPayment},
}

// Validator evaluates proposals. It needs the keyring for the rules that
// verify embedded signatures (agreement signing, transfer requests).
type Validator struct {
	keyring *signing.Keyring
}

func New(keyring *signing.Keyring) *Validator {
	return &Validator{keyring: keyring}
}

// Validate returns nil when every applicable rule passes, or a *Rejection
// listing every failure. It never mutates the proposal.
func (v *Validator) Validate(p Proposal) error {
	c := &check{}

	if len(p.Commands) == 0 {
		c.fail("no commands declared")
		return c.result()
	}

	covered := map[record.Kind]bool{}
	for _, cmd := range p.Commands {
		entry, ok := ruleTable[cmd.Type]
		if !ok {
			c.fail("unknown command %q", cmd.Type)
			continue
		}
		for _, k := range entry.kinds {
			covered[k] = true
		}
		entry.rules(v, c, cmd, p)
	}

	for _, in := range p.Consumed {
		if !covered[in.State.Kind()] {
			c.fail("consumed %s state not covered by any declared command", in.State.Kind())
		}
	}
	for _, out := range p.Produced {
		if !covered[out.Kind()] {
			c.fail("produced %s state not covered by any declared command", out.Kind())
		}
	}

	// Declared signers must actually be present in the bundle's signer set.
	for _, cmd := range p.Commands {
		for _, signer := range cmd.Signers {
			if !record.HasParticipant(p.Signers, signer) {
				c.fail("%s: declared signer %s is not in the bundle signer set", cmd.Type, signer)
			}
		}
	}

	return c.result()
}

// check collects rule failures so a rejection reports all of them at once.
type check struct {
	reasons []string
}

func (c *check) fail(format string, args ...any) {
	c.reasons = append(c.reasons, fmt.Sprintf(format, args...))
}

// requiref records a failure when cond is false and reports cond so callers
// can guard dependent checks.
func (c *check) requiref(cond bool, format string, args ...any) bool {
	if !cond {
		c.fail(format, args...)
	}
	return cond
}

func (c *check) result() error {
	if len(c.reasons) == 0 {
		return nil
	}
	return &Rejection{Reasons: c.reasons}
}

// -----------------------------------------------------------------------------
// Typed extraction helpers
// -----------------------------------------------------------------------------

func consumedOf[T record.State](p Proposal) []T {
	var out []T
	for _, in := range p.Consumed {
		if s, ok := in.State.(T); ok {
			out = append(out, s)
		}
	}
	return out
}

func consumedRefsOf[T record.State](p Proposal) []record.StateAndRef {
	var out []record.StateAndRef
	for _, in := range p.Consumed {
		if _, ok := in.State.(T); ok {
			out = append(out, in)
		}
	}
	return out
}

func producedOf[T record.State](p Proposal) []T {
	var out []T
	for _, s := range p.Produced {
		if t, ok := s.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

// one reports and extracts an exactly-one expectation over a typed slice.
func one[T any](c *check, items []T, what string) (T, bool) {
	var zero T
	if len(items) != 1 {
		c.fail("expected exactly one %s, got %d", what, len(items))
		return zero, false
	}
	return items[0], true
}

func none[T any](c *check, items []T, what string) bool {
	if len(items) != 0 {
		c.fail("expected no %s, got %d", what, len(items))
		return false
	}
	return true
}

func declaredSigner(c *check, cmd Command, party id.PartyID, role string) {
	if !record.HasParticipant(cmd.Signers, party) {
		c.fail("%s: %s %s must be a declared signer", cmd.Type, role, party)
	}
}

// sameDigest compares want (the consumed version with only the permitted
// changes applied) against got, enforcing field immutability byte-for-byte.
func sameDigest(c *check, cmd Command, want, got record.State) {
	if record.Digest(want) != record.Digest(got) {
		c.fail("%s: fields outside the permitted change set were modified", cmd.Type)
	}
}
