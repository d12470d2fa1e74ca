package rules

import (
	"conveyance/internal/record"
)

func verifyRequestTransfer(v *Validator, c *check, cmd Command, p Proposal) {
	inRef, ok := one(c, consumedRefsOf[record.Title](p), "consumed title")
	if !ok {
		return
	}
	in := inRef.State.(record.Title)
	out, ok := one(c, producedOf[record.Title](p), "produced title")
	if !ok {
		return
	}

	c.requiref(in.Status != record.TitlePendingBuyerApproval,
		"RequestTransfer: a transfer is already pending buyer approval")
	c.requiref(in.Status != record.TitleTransferred,
		"RequestTransfer: title has already been transferred")
	c.requiref(out.Status == record.TitlePendingBuyerApproval,
		"RequestTransfer: produced title must be PendingBuyerApproval, got %s", out.Status)

	c.requiref(!out.BuyerConveyancer.IsZero(),
		"RequestTransfer: a buyer conveyancer must be proposed")
	c.requiref(out.BuyerConveyancer != out.OwnerConveyancer,
		"RequestTransfer: buyer conveyancer must differ from the owner conveyancer")

	// Everything except status, buyer conveyancer and the owner signature is
	// immutable; in particular title number, issuer, guarantee class and the
	// owner's identity.
	sameDigest(c, cmd, in.WithTransferRequested(out.BuyerConveyancer, out.OwnerSignature), out)

	// The transfer carries the owner conveyancer's signature over the
	// consumed version, proving the request was made against the state the
	// owner last saw.
	if c.requiref(out.OwnerSignature != "",
		"RequestTransfer: owner signature is required") {
		if err := v.keyring.Verify(in.OwnerConveyancer, out.OwnerSignature, record.Digest(in)); err != nil {
			c.fail("RequestTransfer: owner signature rejected: %v", err)
		}
	}

	declaredSigner(c, cmd, in.OwnerConveyancer, "owner conveyancer")
}

// verifyAssignBuyerConveyancer covers the buyer's acceptance on both the
// title and its charge register; a bundle may carry either or both.
func verifyAssignBuyerConveyancer(_ *Validator, c *check, cmd Command, p Proposal) {
	titlesIn := consumedOf[record.Title](p)
	titlesOut := producedOf[record.Title](p)
	chargesIn := consumedOf[record.ChargesAndRestrictions](p)
	chargesOut := producedOf[record.ChargesAndRestrictions](p)

	if len(titlesIn) == 0 && len(chargesIn) == 0 {
		c.fail("AssignBuyerConveyancer: nothing consumed")
		return
	}

	if len(titlesIn) > 0 {
		in, ok := one(c, titlesIn, "consumed title")
		out, okOut := one(c, titlesOut, "produced title")
		if ok && okOut {
			c.requiref(in.Status == record.TitlePendingBuyerApproval,
				"AssignBuyerConveyancer: consumed title must be PendingBuyerApproval, got %s", in.Status)
			c.requiref(out.Status == record.TitleAssignBuyerConveyancer,
				"AssignBuyerConveyancer: produced title must be AssignBuyerConveyancer, got %s", out.Status)
			sameDigest(c, cmd, in.WithBuyerConveyancerAssigned(), out)
			declaredSigner(c, cmd, in.BuyerConveyancer, "buyer conveyancer")
		}
	}

	if len(chargesIn) > 0 {
		in, ok := one(c, chargesIn, "consumed charge register")
		out, okOut := one(c, chargesOut, "produced charge register")
		if ok && okOut {
			c.requiref(in.Status == record.ChargesIssued || in.Status == record.ChargesDischargeConsented,
				"AssignBuyerConveyancer: charge register must be Issued or DischargeConsented, got %s", in.Status)
			c.requiref(out.Status == record.ChargesAssignBuyerConveyancer,
				"AssignBuyerConveyancer: produced charge register must be AssignBuyerConveyancer, got %s", out.Status)
			c.requiref(!out.BuyerConveyancer.IsZero(),
				"AssignBuyerConveyancer: buyer conveyancer is required on the charge register")
			sameDigest(c, cmd, in.WithBuyerParties(record.ChargesAssignBuyerConveyancer, out.BuyerConveyancer, out.BuyerLender), out)
			declaredSigner(c, cmd, out.BuyerConveyancer, "buyer conveyancer")
		}
	}
}

func verifyTransferTitle(_ *Validator, c *check, cmd Command, p Proposal) {
	titleIn, okT := one(c, consumedOf[record.Title](p), "consumed title")
	titleOut, okTO := one(c, producedOf[record.Title](p), "produced title")
	agreementIn, okA := one(c, consumedOf[record.Agreement](p), "consumed agreement")
	agreementOut, okAO := one(c, producedOf[record.Agreement](p), "produced agreement")
	chargesIn, okC := one(c, consumedOf[record.ChargesAndRestrictions](p), "consumed charge register")
	chargesOut, okCO := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	payment, okP := one(c, consumedOf[record.PaymentConfirmation](p), "consumed payment confirmation")
	if !(okT && okTO && okA && okAO && okC && okCO && okP) {
		return
	}
	// The payment confirmation ends here; no successor version.
	none(c, producedOf[record.PaymentConfirmation](p), "produced payment confirmation")

	c.requiref(titleIn.Status == record.TitleAssignBuyerConveyancer,
		"TransferTitle: consumed title must be AssignBuyerConveyancer, got %s", titleIn.Status)
	c.requiref(titleOut.Status == record.TitleTransferred,
		"TransferTitle: produced title must be Transferred, got %s", titleOut.Status)
	c.requiref(agreementIn.Status == record.AgreementCompleted,
		"TransferTitle: consumed agreement must be Completed, got %s", agreementIn.Status)
	c.requiref(agreementOut.Status == record.AgreementTransferred,
		"TransferTitle: produced agreement must be Transferred, got %s", agreementOut.Status)
	c.requiref(payment.Status == record.PaymentConfirmed,
		"TransferTitle: payment must be Confirmed, got %s", payment.Status)

	c.requiref(agreementIn.TitleID == titleIn.ID,
		"TransferTitle: agreement must reference the consumed title")
	c.requiref(payment.AgreementID == agreementIn.ID,
		"TransferTitle: payment must reference the consumed agreement")
	c.requiref(payment.PurchasePrice == agreementIn.PurchasePrice,
		"TransferTitle: payment amount must match the agreed purchase price")

	c.requiref(titleOut.Owner.Identity == agreementIn.Buyer.Identity,
		"TransferTitle: new owner must be the agreement's buyer")
	c.requiref(titleOut.OwnerConveyancer == agreementIn.BuyerConveyancer,
		"TransferTitle: new owner conveyancer must be the buyer's conveyancer")

	sameDigest(c, cmd,
		titleIn.WithNewOwner(titleOut.Owner, titleOut.OwnerConveyancer, titleOut.OwnerLender), titleOut)
	sameDigest(c, cmd, agreementIn.WithStatus(record.AgreementTransferred), agreementOut)

	c.requiref(chargesOut.Status == record.ChargesTransferred,
		"TransferTitle: produced charge register must be Transferred, got %s", chargesOut.Status)
	c.requiref(chargesIn.TitleNumber == titleIn.TitleNumber,
		"TransferTitle: charge register must belong to the consumed title")

	declaredSigner(c, cmd, agreementIn.BuyerConveyancer, "buyer conveyancer")
	declaredSigner(c, cmd, agreementIn.SellerConveyancer, "seller conveyancer")
	declaredSigner(c, cmd, titleIn.Issuer, "issuer")
}
