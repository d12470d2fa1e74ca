package rules

import (
	"conveyance/internal/record"
)

func verifyRequestPayment(_ *Validator, c *check, cmd Command, p Proposal) {
	none(c, consumedRefsOf[record.PaymentConfirmation](p), "consumed payment confirmation")
	out, ok := one(c, producedOf[record.PaymentConfirmation](p), "produced payment confirmation")
	if !ok {
		return
	}

	c.requiref(out.Status == record.PaymentRequested,
		"RequestPayment: produced confirmation must be Requested, got %s", out.Status)
	c.requiref(!out.AgreementID.IsNil(),
		"RequestPayment: confirmation must reference an agreement")
	c.requiref(!out.SettlingParty.IsZero(),
		"RequestPayment: a settling party is required")
	c.requiref(out.PurchasePrice.Amount > 0,
		"RequestPayment: purchase price must be positive")

	declaredSigner(c, cmd, out.BuyerConveyancer, "buyer conveyancer")
}

func verifyConfirmPayment(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.PaymentConfirmation](p), "consumed payment confirmation")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.PaymentConfirmation](p), "produced payment confirmation")
	if !ok {
		return
	}

	c.requiref(in.Status == record.PaymentRequested,
		"ConfirmPayment: consumed confirmation must be Requested, got %s", in.Status)
	c.requiref(out.Status == record.PaymentConfirmed,
		"ConfirmPayment: produced confirmation must be Confirmed, got %s", out.Status)
	sameDigest(c, cmd, in.WithStatus(record.PaymentConfirmed), out)

	declaredSigner(c, cmd, in.SettlingParty, "settling party")
}
