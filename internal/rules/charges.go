package rules

import (
	"conveyance/internal/record"
)

func verifyRequestDischarge(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.ChargesAndRestrictions](p), "consumed charge register")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	if !ok {
		return
	}

	c.requiref(in.Status == record.ChargesIssued,
		"RequestDischarge: consumed charge register must be Issued, got %s", in.Status)
	c.requiref(out.Status == record.ChargesRequestDischarge,
		"RequestDischarge: produced charge register must be RequestDischarge, got %s", out.Status)

	c.requiref(record.SameRestrictionIDs(in.Restrictions, out.Restrictions),
		"RequestDischarge: restriction set must be unchanged")
	for _, r := range out.Restrictions {
		c.requiref(r.Action == record.ActionDischarge,
			"RequestDischarge: restriction %s must request discharge", r.RestrictionID)
		c.requiref(!r.ConsentGiven,
			"RequestDischarge: restriction %s must not carry consent yet", r.RestrictionID)
	}
	verifyRestrictionCoreUnchanged(c, cmd, in, out)
	verifyChargePayloadsUnchanged(c, cmd, in, out)

	// Only the restriction actions move; charges, title linkage, consent
	// flags and participants stay fixed.
	sameDigest(c, cmd, in.WithRestrictions(record.ChargesRequestDischarge, out.Restrictions), out)
	c.requiref(record.SameCharges(in.Charges, out.Charges),
		"RequestDischarge: charge set must be unchanged")
	c.requiref(record.SameParticipants(in.Participants(), out.Participants()),
		"RequestDischarge: participants must be unchanged")

	declaredSigner(c, cmd, in.OwnerConveyancer, "owner conveyancer")
}

func verifyConsentDischarge(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.ChargesAndRestrictions](p), "consumed charge register")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	if !ok {
		return
	}

	c.requiref(in.Status == record.ChargesRequestDischarge,
		"ConsentDischarge: consumed charge register must be RequestDischarge, got %s", in.Status)
	c.requiref(out.Status == record.ChargesDischargeConsented,
		"ConsentDischarge: produced charge register must be DischargeConsented, got %s", out.Status)

	c.requiref(len(in.Restrictions) == len(out.Restrictions),
		"ConsentDischarge: restriction count must be unchanged")
	c.requiref(record.SameRestrictionIDs(in.Restrictions, out.Restrictions),
		"ConsentDischarge: restriction ids must be unchanged")
	for _, r := range out.Restrictions {
		c.requiref(r.ConsentGiven,
			"ConsentDischarge: restriction %s must carry consent", r.RestrictionID)
		declaredSigner(c, cmd, r.ConsentingParty, "consenting party")
	}
	verifyRestrictionCoreUnchanged(c, cmd, in, out)
	verifyChargePayloadsUnchanged(c, cmd, in, out)

	c.requiref(record.SameCharges(in.Charges, out.Charges),
		"ConsentDischarge: charge set must be unchanged")
	c.requiref(out.DischargeConsented,
		"ConsentDischarge: discharge consent flag must be set")

	want := in.WithRestrictions(record.ChargesDischargeConsented, out.Restrictions)
	want = want.WithConsentFlags(record.ChargesDischargeConsented, true, in.NewChargeConsented)
	sameDigest(c, cmd, want, out)
}

func verifyRequestNewCharge(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.ChargesAndRestrictions](p), "consumed charge register")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	if !ok {
		return
	}

	c.requiref(in.Status == record.ChargesAssignBuyerConveyancer,
		"RequestNewCharge: consumed charge register must be AssignBuyerConveyancer, got %s", in.Status)
	c.requiref(out.Status == record.ChargesNewChargeRequested,
		"RequestNewCharge: produced charge register must be NewChargeRequested, got %s", out.Status)

	c.requiref(!in.BuyerLender.IsZero(),
		"RequestNewCharge: a buyer lender must be assigned before a new charge is requested")
	c.requiref(len(out.Charges) > len(in.Charges),
		"RequestNewCharge: a new charge must be added")
	for _, ch := range chargesAdded(in.Charges, out.Charges) {
		c.requiref(ch.Lender == in.BuyerLender,
			"RequestNewCharge: new charges must come from the buyer's lender")
	}
	c.requiref(!out.NewChargeConsented,
		"RequestNewCharge: new-charge consent must not be pre-set")

	sameDigest(c, cmd, in.WithCharges(record.ChargesNewChargeRequested, out.Charges), out)

	declaredSigner(c, cmd, in.BuyerConveyancer, "buyer conveyancer")
}

func verifyConsentNewCharge(_ *Validator, c *check, cmd Command, p Proposal) {
	in, ok := one(c, consumedOf[record.ChargesAndRestrictions](p), "consumed charge register")
	if !ok {
		return
	}
	out, ok := one(c, producedOf[record.ChargesAndRestrictions](p), "produced charge register")
	if !ok {
		return
	}

	c.requiref(in.Status == record.ChargesNewChargeRequested,
		"ConsentNewCharge: consumed charge register must be NewChargeRequested, got %s", in.Status)
	c.requiref(out.Status == record.ChargesNewChargeConsented,
		"ConsentNewCharge: produced charge register must be NewChargeConsented, got %s", out.Status)
	c.requiref(out.NewChargeConsented,
		"ConsentNewCharge: new-charge consent flag must be set")
	c.requiref(record.SameCharges(in.Charges, out.Charges),
		"ConsentNewCharge: charge set must be unchanged")

	sameDigest(c, cmd,
		in.WithConsentFlags(record.ChargesNewChargeConsented, in.DischargeConsented, true), out)

	declaredSigner(c, cmd, in.BuyerLender, "buyer lender")
}

// verifyRestrictionCoreUnchanged checks the identifying payload of each
// restriction (text, consenting party) survives a restriction rewrite; only
// the action and consent markers are allowed to move.
func verifyRestrictionCoreUnchanged(c *check, cmd Command, in, out record.ChargesAndRestrictions) {
	prior := map[string]record.Restriction{}
	for _, r := range in.Restrictions {
		prior[r.RestrictionID] = r
	}
	for _, r := range out.Restrictions {
		was, known := prior[r.RestrictionID]
		if !known {
			continue
		}
		if r.Text != was.Text || r.ConsentingParty != was.ConsentingParty {
			c.fail("%s: restriction %s changed beyond action and consent", cmd.Type, r.RestrictionID)
		}
	}
}

// verifyChargePayloadsUnchanged checks the charge embedded in each charge
// restriction survives unchanged across a restriction rewrite.
func verifyChargePayloadsUnchanged(c *check, cmd Command, in, out record.ChargesAndRestrictions) {
	prior := map[string]*record.Charge{}
	for _, r := range in.Restrictions {
		prior[r.RestrictionID] = r.Charge
	}
	for _, r := range out.Restrictions {
		was, known := prior[r.RestrictionID]
		if !known {
			continue // reported by the restriction-id set check
		}
		switch {
		case was == nil && r.Charge == nil:
		case was == nil || r.Charge == nil:
			c.fail("%s: restriction %s changed its charge payload", cmd.Type, r.RestrictionID)
		case !was.Equal(*r.Charge):
			c.fail("%s: restriction %s changed its charge payload", cmd.Type, r.RestrictionID)
		}
	}
}

func chargesAdded(before, after []record.Charge) []record.Charge {
	var added []record.Charge
	for _, ch := range after {
		found := false
		for _, prior := range before {
			if ch.Equal(prior) {
				found = true
				break
			}
		}
		if !found {
			added = append(added, ch)
		}
	}
	return added
}
