package workflow

import (
	"context"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	id "conveyance/pkg/domain"
)

// RequestPayment is the buyer's conveyancer asking the settling party to
// transfer the purchase funds for a completed agreement.
func (s *Service) RequestPayment(ctx context.Context, agreementID id.LinearID, settlingParty id.PartyID) (Committed[record.PaymentConfirmation], error) {
	var zero Committed[record.PaymentConfirmation]

	_, agreement, err := current[record.Agreement](ctx, s, record.KindAgreement, agreementID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, agreement.BuyerConveyancer, "buyer conveyancer"); err != nil {
		return zero, err
	}

	confirmation := record.PaymentConfirmation{
		ID:               id.NewLinearID(),
		AgreementID:      agreement.ID,
		Buyer:            agreement.Buyer,
		Seller:           agreement.Seller,
		PurchasePrice:    agreement.PurchasePrice,
		SettlingParty:    settlingParty,
		BuyerConveyancer: agreement.BuyerConveyancer,
		Status:           record.PaymentRequested,
	}

	tx, err := s.commit(ctx, rules.CmdRequestPayment, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdRequestPayment, Signers: []id.PartyID{agreement.BuyerConveyancer}}},
		Produced: []record.State{confirmation},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.PaymentConfirmation](tx, record.KindPayment)
}

// ConfirmPayment is the settling party recording receipt of the funds.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID id.LinearID) (Committed[record.PaymentConfirmation], error) {
	var zero Committed[record.PaymentConfirmation]

	in, confirmation, err := current[record.PaymentConfirmation](ctx, s, record.KindPayment, paymentID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, confirmation.SettlingParty, "settling party"); err != nil {
		return zero, err
	}

	tx, err := s.commit(ctx, rules.CmdConfirmPayment, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdConfirmPayment, Signers: []id.PartyID{confirmation.SettlingParty}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{confirmation.WithStatus(record.PaymentConfirmed)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.PaymentConfirmation](tx, record.KindPayment)
}
