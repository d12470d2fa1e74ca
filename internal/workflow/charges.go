package workflow

import (
	"context"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
)

// RequestDischarge marks every restriction on the charge register for
// discharge ahead of a sale. The owner's conveyancer signs.
func (s *Service) RequestDischarge(ctx context.Context, registerID id.LinearID) (Committed[record.ChargesAndRestrictions], error) {
	var zero Committed[record.ChargesAndRestrictions]

	in, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, registerID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, register.OwnerConveyancer, "owner conveyancer"); err != nil {
		return zero, err
	}

	restrictions := make([]record.Restriction, len(register.Restrictions))
	for i, r := range register.Restrictions {
		r.Action = record.ActionDischarge
		r.ConsentGiven = false
		restrictions[i] = r
	}

	tx, err := s.commit(ctx, rules.CmdRequestDischarge, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdRequestDischarge, Signers: []id.PartyID{register.OwnerConveyancer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{register.WithRestrictions(record.ChargesRequestDischarge, restrictions)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.ChargesAndRestrictions](tx, record.KindCharges)
}

// ConsentDischarge records every consenting party's agreement to discharge.
// Each restriction's consenting party must sign, so this node needs keys for
// all of them.
func (s *Service) ConsentDischarge(ctx context.Context, registerID id.LinearID) (Committed[record.ChargesAndRestrictions], error) {
	var zero Committed[record.ChargesAndRestrictions]

	in, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, registerID)
	if err != nil {
		return zero, err
	}

	consenters := consentingParties(register)
	if len(consenters) == 0 {
		return zero, dErrors.New(dErrors.CodeUnprocessable, "charge register has no restrictions to consent to")
	}
	if !record.HasParticipant(consenters, callerOf(ctx)) {
		return zero, dErrors.New(dErrors.CodeUnauthorized, "only a consenting party may consent to discharge")
	}

	restrictions := make([]record.Restriction, len(register.Restrictions))
	for i, r := range register.Restrictions {
		r.ConsentGiven = true
		restrictions[i] = r
	}
	out := register.WithRestrictions(record.ChargesDischargeConsented, restrictions)
	out = out.WithConsentFlags(record.ChargesDischargeConsented, true, register.NewChargeConsented)

	tx, err := s.commit(ctx, rules.CmdConsentDischarge, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdConsentDischarge, Signers: consenters}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{out},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.ChargesAndRestrictions](tx, record.KindCharges)
}

// RequestNewCharge records the buyer's mortgage as a new charge from the
// buyer's lender. The buyer's conveyancer signs.
func (s *Service) RequestNewCharge(ctx context.Context, registerID id.LinearID, charge record.Charge) (Committed[record.ChargesAndRestrictions], error) {
	var zero Committed[record.ChargesAndRestrictions]

	in, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, registerID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, register.BuyerConveyancer, "buyer conveyancer"); err != nil {
		return zero, err
	}

	charges := append(record.SortCharges(register.Charges), charge)
	tx, err := s.commit(ctx, rules.CmdRequestNewCharge, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdRequestNewCharge, Signers: []id.PartyID{register.BuyerConveyancer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{register.WithCharges(record.ChargesNewChargeRequested, charges)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.ChargesAndRestrictions](tx, record.KindCharges)
}

// ConsentNewCharge is the buyer's lender agreeing to the requested charge.
func (s *Service) ConsentNewCharge(ctx context.Context, registerID id.LinearID) (Committed[record.ChargesAndRestrictions], error) {
	var zero Committed[record.ChargesAndRestrictions]

	in, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, registerID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, register.BuyerLender, "buyer lender"); err != nil {
		return zero, err
	}

	out := register.WithConsentFlags(record.ChargesNewChargeConsented, register.DischargeConsented, true)
	tx, err := s.commit(ctx, rules.CmdConsentNewCharge, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdConsentNewCharge, Signers: []id.PartyID{register.BuyerLender}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{out},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.ChargesAndRestrictions](tx, record.KindCharges)
}

func consentingParties(register record.ChargesAndRestrictions) []id.PartyID {
	var out []id.PartyID
	for _, r := range register.Restrictions {
		if !r.ConsentingParty.IsZero() && !record.HasParticipant(out, r.ConsentingParty) {
			out = append(out, r.ConsentingParty)
		}
	}
	return out
}
