package workflow

import (
	"context"
	"fmt"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
)

// RequestTransfer is the owner's conveyancer putting a title up for sale,
// proposing the buyer's conveyancer. The produced version carries the
// owner conveyancer's detached signature over the version being consumed.
func (s *Service) RequestTransfer(ctx context.Context, titleID id.LinearID, buyerConveyancer id.PartyID) (Committed[record.Title], error) {
	var zero Committed[record.Title]

	in, title, err := current[record.Title](ctx, s, record.KindTitle, titleID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, title.OwnerConveyancer, "owner conveyancer"); err != nil {
		return zero, err
	}

	signer, ok := s.signers[title.OwnerConveyancer]
	if !ok {
		return zero, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("no signing key held for %s", title.OwnerConveyancer))
	}
	ownerSig, err := signer.Sign(record.Digest(title))
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "sign transfer request")
	}

	tx, err := s.commit(ctx, rules.CmdRequestTransfer, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdRequestTransfer, Signers: []id.PartyID{title.OwnerConveyancer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{title.WithTransferRequested(buyerConveyancer, ownerSig)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.Title](tx, record.KindTitle)
}

// AssignBuyerConveyancer is the proposed buyer conveyancer accepting the
// sale. The title and its charge register move together, and the buyer's
// lender is attached to the charge register for the mortgage that follows.
func (s *Service) AssignBuyerConveyancer(ctx context.Context, titleID id.LinearID, buyerLender id.PartyID) (Committed[record.Title], error) {
	var zero Committed[record.Title]

	titleIn, title, err := current[record.Title](ctx, s, record.KindTitle, titleID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, title.BuyerConveyancer, "buyer conveyancer"); err != nil {
		return zero, err
	}

	registerIn, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, title.ChargesRecordID)
	if err != nil {
		return zero, err
	}

	tx, err := s.commit(ctx, rules.CmdAssignBuyerConveyancer, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdAssignBuyerConveyancer, Signers: []id.PartyID{title.BuyerConveyancer}}},
		Consumed: []record.StateAndRef{titleIn, registerIn},
		Produced: []record.State{
			title.WithBuyerConveyancerAssigned(),
			register.WithBuyerParties(record.ChargesAssignBuyerConveyancer, title.BuyerConveyancer, buyerLender),
		},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.Title](tx, record.KindTitle)
}

// TransferTitle settles the sale: the title, its charge register and the
// agreement all move to Transferred and the confirmed payment is retired, in
// one bundle signed by the buyer's conveyancer, the seller's conveyancer and
// the issuer. The scheduler drives it at the agreement's completion date;
// it can also be invoked directly if a trigger was lost.
func (s *Service) TransferTitle(ctx context.Context, agreementID id.LinearID) (Committed[record.Title], error) {
	var zero Committed[record.Title]

	agreementIn, agreement, err := current[record.Agreement](ctx, s, record.KindAgreement, agreementID)
	if err != nil {
		return zero, err
	}
	titleIn, title, err := current[record.Title](ctx, s, record.KindTitle, agreement.TitleID)
	if err != nil {
		return zero, err
	}
	registerIn, register, err := current[record.ChargesAndRestrictions](ctx, s, record.KindCharges, title.ChargesRecordID)
	if err != nil {
		return zero, err
	}
	paymentIn, err := s.confirmedPaymentFor(ctx, agreementID)
	if err != nil {
		return zero, err
	}

	// The buyer's lender becomes the new owner's lender only once it has
	// consented to its charge.
	var newLender id.PartyID
	if register.NewChargeConsented {
		newLender = register.BuyerLender
	}

	tx, err := s.commit(ctx, rules.CmdTransferTitle, ledger.ProposedTransaction{
		Commands: []rules.Command{{
			Type:    rules.CmdTransferTitle,
			Signers: []id.PartyID{agreement.BuyerConveyancer, agreement.SellerConveyancer, title.Issuer},
		}},
		Consumed: []record.StateAndRef{titleIn, registerIn, agreementIn, paymentIn},
		Produced: []record.State{
			title.WithNewOwner(agreement.Buyer, agreement.BuyerConveyancer, newLender),
			register.WithStatus(record.ChargesTransferred),
			agreement.WithStatus(record.AgreementTransferred),
		},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.Title](tx, record.KindTitle)
}

// confirmedPaymentFor finds the current confirmed payment referencing the
// agreement.
func (s *Service) confirmedPaymentFor(ctx context.Context, agreementID id.LinearID) (record.StateAndRef, error) {
	payments, err := s.store.CurrentOfKind(ctx, record.KindPayment)
	if err != nil {
		return record.StateAndRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "load payments")
	}
	for _, ref := range payments {
		payment, ok := ref.State.(record.PaymentConfirmation)
		if !ok {
			continue
		}
		if payment.AgreementID == agreementID && payment.Status == record.PaymentConfirmed {
			return ref, nil
		}
	}
	return record.StateAndRef{},
		dErrors.New(dErrors.CodeUnprocessable, fmt.Sprintf("no confirmed payment for agreement %s", agreementID))
}
