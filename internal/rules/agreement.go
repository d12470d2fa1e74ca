package rules

import (
	"conveyance/internal/record"
)

func verifyCreateAgreement(_ *Validator, c *check, cmd Command, p Proposal) {
	none(c, consumedRefsOf[record.Agreement](p), "consumed agreement")
	out, ok := one(c, producedOf[record.Agreement](p), "produced agreement")
	if !ok {
		return
	}

	c.requiref(out.Status == record.AgreementCreated,
		"CreateAgreement: produced agreement must be Created, got %s", out.Status)
	c.requiref(!out.TitleID.IsNil(),
		"CreateAgreement: agreement must reference a title")
	c.requiref(out.Buyer.Identity != out.Seller.Identity,
		"CreateAgreement: buyer and seller must differ")
	c.requiref(out.BuyerConveyancer != out.SellerConveyancer,
		"CreateAgreement: buyer and seller conveyancers must differ")
	c.requiref(out.CompletionDate.After(out.CreationDate),
		"CreateAgreement: completion date must be after the agreement date")

	c.requiref(out.PurchasePrice.Currency == out.Deposit.Currency &&
		out.PurchasePrice.Currency == out.Balance.Currency,
		"CreateAgreement: monetary terms must share a currency")
	c.requiref(out.Deposit.Amount+out.Balance.Amount == out.PurchasePrice.Amount,
		"CreateAgreement: deposit and balance must sum to the purchase price")

	c.requiref(!out.MortgageTermsAdded,
		"CreateAgreement: mortgage terms are added at approval, not draft")
	c.requiref(out.SellerSignature == "" && out.BuyerSignature == "",
		"CreateAgreement: a draft carries no signatures")

	declaredSigner(c, cmd, out.SellerConveyancer, "seller conveyancer")
}

func verifyApproveAgreement(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.Agreement](p), "consumed agreement")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.Agreement](p), "produced agreement")
	if !ok {
		return
	}

	c.requiref(in.Status == record.AgreementCreated,
		"ApproveAgreement: consumed agreement must be Created, got %s", in.Status)
	c.requiref(out.Status == record.AgreementApproved,
		"ApproveAgreement: produced agreement must be Approved, got %s", out.Status)
	c.requiref(out.MortgageTermsAdded,
		"ApproveAgreement: mortgage terms must be added on approval")
	sameDigest(c, cmd, in.WithMortgageTerms(), out)

	declaredSigner(c, cmd, in.BuyerConveyancer, "buyer conveyancer")
}

func verifySellerSign(v *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.Agreement](p), "consumed agreement")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.Agreement](p), "produced agreement")
	if !ok {
		return
	}

	c.requiref(in.Status == record.AgreementApproved,
		"SellerSign: consumed agreement must be Approved, got %s", in.Status)
	c.requiref(out.Status == record.AgreementSigned,
		"SellerSign: produced agreement must be Signed, got %s", out.Status)
	sameDigest(c, cmd, in.WithSellerSignature(out.SellerSignature), out)

	if c.requiref(out.SellerSignature != "",
		"SellerSign: seller signature is required") {
		if err := v.keyring.Verify(in.SellerConveyancer, out.SellerSignature, record.Digest(in)); err != nil {
			c.fail("SellerSign: seller signature rejected: %v", err)
		}
	}

	declaredSigner(c, cmd, in.SellerConveyancer, "seller conveyancer")
}

func verifyBuyerSign(v *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.Agreement](p), "consumed agreement")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.Agreement](p), "produced agreement")
	if !ok {
		return
	}

	c.requiref(in.Status == record.AgreementSigned,
		"BuyerSign: consumed agreement must be Signed, got %s", in.Status)
	c.requiref(out.Status == record.AgreementCompleted,
		"BuyerSign: produced agreement must be Completed, got %s", out.Status)
	c.requiref(out.SellerSignature == in.SellerSignature,
		"BuyerSign: seller signature must be preserved")
	sameDigest(c, cmd, in.WithBuyerSignature(out.BuyerSignature), out)

	if c.requiref(out.BuyerSignature != "",
		"BuyerSign: buyer signature is required") {
		if err := v.keyring.Verify(in.BuyerConveyancer, out.BuyerSignature, record.Digest(in)); err != nil {
			c.fail("BuyerSign: buyer signature rejected: %v", err)
		}
	}

	declaredSigner(c, cmd, in.BuyerConveyancer, "buyer conveyancer")
}
