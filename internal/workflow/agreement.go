package workflow

import (
	"context"
	"fmt"
	"time"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/requestcontext"
)

// DraftAgreementParams carries the seller side's draft terms.
type DraftAgreementParams struct {
	TitleID          id.LinearID
	Buyer            record.CustomerDetails
	Seller           record.CustomerDetails
	BuyerConveyancer id.PartyID

	CompletionDate time.Time

	ContractRate        float64
	PurchasePrice       id.Money
	Deposit             id.Money
	ContentsPrice       id.Money
	Balance             id.Money
	Guarantee           record.TitleGuarantee
	SpecificPerformance bool
}

// DraftAgreement creates the sales contract in the Created state. The caller
// acts as the seller's conveyancer and signs the draft.
func (s *Service) DraftAgreement(ctx context.Context, p DraftAgreementParams) (Committed[record.Agreement], error) {
	var zero Committed[record.Agreement]

	sellerConveyancer := callerOf(ctx)
	if sellerConveyancer.IsZero() {
		return zero, dErrors.New(dErrors.CodeUnauthorized, "a calling party is required")
	}

	agreement := record.Agreement{
		ID:                  id.NewLinearID(),
		TitleID:             p.TitleID,
		Buyer:               p.Buyer,
		Seller:              p.Seller,
		BuyerConveyancer:    p.BuyerConveyancer,
		SellerConveyancer:   sellerConveyancer,
		CreationDate:        requestcontext.Now(ctx),
		CompletionDate:      p.CompletionDate,
		ContractRate:        p.ContractRate,
		PurchasePrice:       p.PurchasePrice,
		Deposit:             p.Deposit,
		ContentsPrice:       p.ContentsPrice,
		Balance:             p.Balance,
		Guarantee:           p.Guarantee,
		SpecificPerformance: p.SpecificPerformance,
		Status:              record.AgreementCreated,
	}

	tx, err := s.commit(ctx, rules.CmdCreateAgreement, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdCreateAgreement, Signers: []id.PartyID{sellerConveyancer}}},
		Produced: []record.State{agreement},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.Agreement](tx, record.KindAgreement)
}

// ApproveAgreement is the buyer's conveyancer approving the draft and adding
// the mortgage terms.
func (s *Service) ApproveAgreement(ctx context.Context, agreementID id.LinearID) (Committed[record.Agreement], error) {
	var zero Committed[record.Agreement]

	in, agreement, err := current[record.Agreement](ctx, s, record.KindAgreement, agreementID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, agreement.BuyerConveyancer, "buyer conveyancer"); err != nil {
		return zero, err
	}

	tx, err := s.commit(ctx, rules.CmdApproveAgreement, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdApproveAgreement, Signers: []id.PartyID{agreement.BuyerConveyancer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{agreement.WithMortgageTerms()},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.Agreement](tx, record.KindAgreement)
}

// SignAgreement advances the contract signature exchange. The seller's
// conveyancer signs first, moving Approved to Signed; the buyer's
// conveyancer countersigns, moving Signed to Completed. Each embedded
// signature covers the consumed version's digest. Completion books the
// transfer trigger for the agreed completion date.
func (s *Service) SignAgreement(ctx context.Context, agreementID id.LinearID) (Committed[record.Agreement], error) {
	var zero Committed[record.Agreement]

	in, agreement, err := current[record.Agreement](ctx, s, record.KindAgreement, agreementID)
	if err != nil {
		return zero, err
	}

	var (
		cmd    rules.CommandType
		party  id.PartyID
		role   string
		extend func(record.Agreement, string) record.Agreement
	)
	switch agreement.Status {
	case record.AgreementApproved:
		cmd, party, role = rules.CmdSellerSign, agreement.SellerConveyancer, "seller conveyancer"
		extend = record.Agreement.WithSellerSignature
	case record.AgreementSigned:
		cmd, party, role = rules.CmdBuyerSign, agreement.BuyerConveyancer, "buyer conveyancer"
		extend = record.Agreement.WithBuyerSignature
	default:
		return zero, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("agreement is %s and cannot be signed", agreement.Status))
	}
	if err := callerIs(ctx, party, role); err != nil {
		return zero, err
	}

	signer, ok := s.signers[party]
	if !ok {
		return zero, dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("no signing key held for %s", party))
	}
	sig, err := signer.Sign(record.Digest(agreement))
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "sign agreement")
	}

	out := extend(agreement, sig)
	tx, err := s.commit(ctx, cmd, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: cmd, Signers: []id.PartyID{party}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{out},
	})
	if err != nil {
		return zero, err
	}

	if out.Status == record.AgreementCompleted && s.scheduler != nil {
		if err := s.scheduler.ScheduleTransfer(ctx, out.TitleID, out.ID, out.CompletionDate); err != nil {
			// The signature exchange stands; the transfer can still be run
			// manually if the trigger was lost.
			s.logger.ErrorContext(ctx, "schedule transfer failed",
				"agreement_id", out.ID, "completion_date", out.CompletionDate, "error", err)
		}
	}
	return committedAs[record.Agreement](tx, record.KindAgreement)
}
