package rules

import (
	"conveyance/internal/record"
	id "conveyance/pkg/domain"
)

func verifyRequestIssuance(_ *Validator, c *check, cmd Command, p Proposal) {
	instruction, ok := one(c, consumedOf[record.ConveyancerInstruction](p), "consumed instruction")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.IssuanceRequest](p), "produced issuance request")
	if !ok {
		return
	}

	if !hasCommand(p, CmdAcceptInstruction) {
		c.fail("RequestIssuance: instruction must be consumed via AcceptInstruction in the same transaction")
	}

	c.requiref(out.Status == record.RequestPending,
		"RequestIssuance: produced request must be Pending, got %s", out.Status)
	c.requiref(out.TitleIssuer != out.Conveyancer,
		"RequestIssuance: issuer must differ from the conveyancer")
	c.requiref(record.SameParticipants(out.Participants(), []id.PartyID{out.TitleIssuer, out.Conveyancer}),
		"RequestIssuance: participants must be exactly the issuer and the conveyancer")

	c.requiref(out.TitleNumber == instruction.TitleNumber,
		"RequestIssuance: title number must match the instruction")
	c.requiref(out.TitleIssuer == instruction.TitleIssuer,
		"RequestIssuance: issuer must match the instruction")
	c.requiref(out.Conveyancer == instruction.Conveyancer,
		"RequestIssuance: conveyancer must match the instruction")
	c.requiref(out.Seller.Identity == instruction.User.Identity,
		"RequestIssuance: seller must be the instructed user")

	declaredSigner(c, cmd, out.Conveyancer, "conveyancer")
}

func verifyApproveIssuance(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.IssuanceRequest](p), "consumed issuance request")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.IssuanceRequest](p), "produced issuance request")
	if !ok {
		return
	}
	title, okTitle := one(c, producedOf[record.Title](p), "produced title")
	charges, okCharges := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	if !okTitle || !okCharges {
		return
	}

	c.requiref(in.Status == record.RequestPending,
		"ApproveIssuance: consumed request must be Pending, got %s", in.Status)
	c.requiref(out.Status == record.RequestApproved,
		"ApproveIssuance: produced request must be Approved, got %s", out.Status)
	sameDigest(c, cmd, in.WithStatus(record.RequestApproved), out)

	c.requiref(title.Status == record.TitleIssued,
		"ApproveIssuance: produced title must be Issued, got %s", title.Status)
	c.requiref(title.TitleNumber == in.TitleNumber,
		"ApproveIssuance: title number must match the request")
	c.requiref(title.Issuer == in.TitleIssuer,
		"ApproveIssuance: title issuer must match the request")
	c.requiref(title.OwnerConveyancer == in.Conveyancer,
		"ApproveIssuance: owner conveyancer must be the requesting conveyancer")
	c.requiref(title.Owner.Identity == in.Seller.Identity,
		"ApproveIssuance: title owner must be the request's seller")
	c.requiref(title.BuyerConveyancer.IsZero(),
		"ApproveIssuance: issued title must not carry a buyer conveyancer")
	c.requiref(title.OwnerSignature == "",
		"ApproveIssuance: issued title must not carry an owner signature")

	c.requiref(charges.Status == record.ChargesIssued,
		"ApproveIssuance: produced charge register must be Issued, got %s", charges.Status)
	c.requiref(charges.TitleNumber == in.TitleNumber,
		"ApproveIssuance: charge register title number must match the request")
	c.requiref(charges.OwnerConveyancer == in.Conveyancer,
		"ApproveIssuance: charge register owner conveyancer must be the requesting conveyancer")
	c.requiref(title.ChargesRecordID == charges.ID,
		"ApproveIssuance: title must link its charge register")

	c.requiref(record.SameCharges(title.Charges, charges.Charges),
		"ApproveIssuance: title and charge register must carry the same charges")
	c.requiref(record.SameRestrictionIDs(title.Restrictions, charges.Restrictions),
		"ApproveIssuance: title and charge register must carry the same restrictions")

	c.requiref(!charges.DischargeConsented && !charges.NewChargeConsented,
		"ApproveIssuance: consent flags must be unset on issue")
	for _, r := range charges.Restrictions {
		c.requiref(!r.ConsentGiven,
			"ApproveIssuance: restriction %s must not carry consent on issue", r.RestrictionID)
		c.requiref(r.Action == record.ActionNoAction,
			"ApproveIssuance: restriction %s must carry no pending action on issue", r.RestrictionID)
	}

	declaredSigner(c, cmd, in.TitleIssuer, "issuer")
}

func verifyRejectAlreadyIssued(_ *Validator, c *check, cmd Command, p Proposal) {
	verifyRequestStatusChange(c, cmd, p, record.RequestPending, record.RequestAlreadyIssued)
}

func verifyIssuanceFailed(_ *Validator, c *check, cmd Command, p Proposal) {
	verifyRequestStatusChange(c, cmd, p, record.RequestPending, record.RequestFailed)
}

// verifyRequestStatusChange covers the registry-signed terminal moves of the
// request state machine: only the status may change, and only the issuer
// signs.
func verifyRequestStatusChange(c *check, cmd Command, p Proposal, from, to record.RequestStatus) {
	in, ok := one(c, consumedOf[record.IssuanceRequest](p), "consumed issuance request")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.IssuanceRequest](p), "produced issuance request")
	if !ok {
		return
	}

	c.requiref(in.Status == from,
		"%s: consumed request must be %s, got %s", cmd.Type, from, in.Status)
	c.requiref(out.Status == to,
		"%s: produced request must be %s, got %s", cmd.Type, to, out.Status)
	sameDigest(c, cmd, in.WithStatus(to), out)

	declaredSigner(c, cmd, in.TitleIssuer, "issuer")
}

func verifyRetryAfterFailure(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.IssuanceRequest](p), "consumed issuance request")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.IssuanceRequest](p), "produced issuance request")
	if !ok {
		return
	}

	c.requiref(in.Status == record.RequestFailed,
		"RetryAfterFailure: consumed request must be Failed, got %s", in.Status)
	c.requiref(out.Status == record.RequestPending,
		"RetryAfterFailure: produced request must be Pending, got %s", out.Status)
	sameDigest(c, cmd, in.WithStatus(record.RequestPending), out)

	c.requiref(out.TitleIssuer != out.Conveyancer,
		"RetryAfterFailure: issuer must differ from the conveyancer")
	c.requiref(record.SameParticipants(out.Participants(), in.Participants()),
		"RetryAfterFailure: participants must be unchanged")

	// Only the original conveyancer signs a retry; the issuer is dragged
	// along as a participant, never as a signer.
	declaredSigner(c, cmd, in.Conveyancer, "conveyancer")
	c.requiref(len(cmd.Signers) == 1,
		"RetryAfterFailure: the conveyancer must be the only declared signer")
}
