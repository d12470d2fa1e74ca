package workflow

import (
	"context"
	"errors"
	"fmt"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/titledata"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/platform/sentinel"
)

// Committed pairs a procedure's primary produced record with the
// transaction that carries it.
type Committed[T record.State] struct {
	TxID   id.TxID `json:"tx_id"`
	Record T       `json:"record"`
}

func committedAs[T record.State](tx ledger.CommittedTransaction, kind record.Kind) (Committed[T], error) {
	var out Committed[T]
	ref, ok := tx.FirstOf(kind)
	if !ok {
		return out, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("committed bundle missing %s output", kind))
	}
	state, ok := ref.State.(T)
	if !ok {
		return out, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("committed %s output has unexpected type", kind))
	}
	out.TxID = tx.ID
	out.Record = state
	return out, nil
}

// DraftInstructionParams carries the registry's instruction to a
// conveyancer.
type DraftInstructionParams struct {
	TitleNumber id.TitleNumber
	CaseRef     string
	Conveyancer id.PartyID
	User        record.CustomerDetails
}

// DraftInstruction records the registry instructing a conveyancer to act
// for a confirmed customer. The caller must be the issuing party.
func (s *Service) DraftInstruction(ctx context.Context, p DraftInstructionParams) (Committed[record.ConveyancerInstruction], error) {
	var zero Committed[record.ConveyancerInstruction]
	if err := callerIs(ctx, s.party, "issuer"); err != nil {
		return zero, err
	}

	instruction := record.ConveyancerInstruction{
		ID:          id.NewLinearID(),
		TitleNumber: p.TitleNumber,
		CaseRef:     p.CaseRef,
		TitleIssuer: s.party,
		Conveyancer: p.Conveyancer,
		User:        p.User,
	}

	tx, err := s.commit(ctx, rules.CmdCreateInstruction, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdCreateInstruction, Signers: []id.PartyID{s.party}}},
		Produced: []record.State{instruction},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.ConveyancerInstruction](tx, record.KindInstruction)
}

// RequestIssuance is the conveyancer accepting an instruction and asking the
// registry to issue the title. The instruction is consumed and a Pending
// issuance request produced in one bundle.
func (s *Service) RequestIssuance(ctx context.Context, instructionID id.LinearID) (Committed[record.IssuanceRequest], error) {
	var zero Committed[record.IssuanceRequest]

	in, instruction, err := current[record.ConveyancerInstruction](ctx, s, record.KindInstruction, instructionID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, instruction.Conveyancer, "instructed conveyancer"); err != nil {
		return zero, err
	}

	request := record.IssuanceRequest{
		ID:          id.NewLinearID(),
		TitleNumber: instruction.TitleNumber,
		TitleIssuer: instruction.TitleIssuer,
		Conveyancer: instruction.Conveyancer,
		Seller:      instruction.User,
		Status:      record.RequestPending,
	}

	conveyancer := []id.PartyID{instruction.Conveyancer}
	tx, err := s.commit(ctx, rules.CmdRequestIssuance, ledger.ProposedTransaction{
		Commands: []rules.Command{
			{Type: rules.CmdAcceptInstruction, Signers: conveyancer},
			{Type: rules.CmdRequestIssuance, Signers: conveyancer},
		},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{request},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.IssuanceRequest](tx, record.KindRequest)
}

// IssueTitle is the registry acting on a Pending issuance request. Exactly
// one bundle is committed whatever happens:
//
//   - the title number already has a current title: the request moves to
//     AlreadyIssued
//   - the title data source fails or has no such title: the request moves to
//     Failed, preserving the retry path
//   - otherwise: the request moves to Approved and the title and its charge
//     register are issued alongside it
func (s *Service) IssueTitle(ctx context.Context, requestID id.LinearID) (Committed[record.IssuanceRequest], error) {
	var zero Committed[record.IssuanceRequest]

	in, request, err := current[record.IssuanceRequest](ctx, s, record.KindRequest, requestID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, request.TitleIssuer, "issuer"); err != nil {
		return zero, err
	}
	if request.Status != record.RequestPending {
		return zero, dErrors.New(dErrors.CodeConflict, fmt.Sprintf("request is %s, not pending", request.Status))
	}

	existing, err := s.store.CurrentByTitleNumber(ctx, record.KindTitle, request.TitleNumber)
	if err != nil {
		return zero, dErrors.Wrap(err, dErrors.CodeInternal, "check for existing title")
	}
	if len(existing) > 0 {
		return s.resolveRequest(ctx, rules.CmdRejectAlreadyIssued, in, request, record.RequestAlreadyIssued)
	}

	data, err := s.titles.Get(ctx, request.TitleNumber)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) && !errors.Is(err, sentinel.ErrUnavailable) {
			return zero, dErrors.Wrap(err, dErrors.CodeInternal, "title lookup")
		}
		// The lookup failure itself is committed so the conveyancer can see
		// it and retry later.
		s.logger.WarnContext(ctx, "title lookup failed, failing request",
			"title_number", request.TitleNumber, "error", err)
		return s.resolveRequest(ctx, rules.CmdIssuanceFailed, in, request, record.RequestFailed)
	}

	title, charges := buildIssuedRecords(request, data)
	tx, err := s.commit(ctx, rules.CmdApproveIssuance, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdApproveIssuance, Signers: []id.PartyID{request.TitleIssuer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{request.WithStatus(record.RequestApproved), title, charges},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.IssuanceRequest](tx, record.KindRequest)
}

// resolveRequest commits a terminal status move on the request, signed by
// the issuer alone.
func (s *Service) resolveRequest(ctx context.Context, cmd rules.CommandType, in record.StateAndRef, request record.IssuanceRequest, to record.RequestStatus) (Committed[record.IssuanceRequest], error) {
	var zero Committed[record.IssuanceRequest]
	tx, err := s.commit(ctx, cmd, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: cmd, Signers: []id.PartyID{request.TitleIssuer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{request.WithStatus(to)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.IssuanceRequest](tx, record.KindRequest)
}

// buildIssuedRecords shapes the title and its charge register from the
// registry's title data. Restriction actions and consent markers always
// start clear regardless of what the source carries.
func buildIssuedRecords(request record.IssuanceRequest, data titledata.Data) (record.Title, record.ChargesAndRestrictions) {
	restrictions := make([]record.Restriction, len(data.Restrictions))
	for i, r := range data.Restrictions {
		r.Action = record.ActionNoAction
		r.ConsentGiven = false
		restrictions[i] = r
	}

	charges := record.ChargesAndRestrictions{
		ID:               id.NewLinearID(),
		TitleNumber:      request.TitleNumber,
		OwnerConveyancer: request.Conveyancer,
		Restrictions:     restrictions,
		Charges:          data.Charges,
		Status:           record.ChargesIssued,
	}.Normalize()

	title := record.Title{
		ID:               id.NewLinearID(),
		TitleNumber:      request.TitleNumber,
		Address:          data.Address,
		Owner:            data.Owner,
		OwnerConveyancer: request.Conveyancer,
		OwnerLender:      data.OwnerLender,
		Issuer:           request.TitleIssuer,
		Guarantee:        data.Guarantee,
		Status:           record.TitleIssued,
		Charges:          data.Charges,
		Restrictions:     restrictions,
		ChargesRecordID:  charges.ID,
	}.Normalize()

	return title, charges
}

// RetryIssuance re-enters a Failed request into the Pending state. Only the
// original conveyancer may retry, and it signs alone.
func (s *Service) RetryIssuance(ctx context.Context, requestID id.LinearID) (Committed[record.IssuanceRequest], error) {
	var zero Committed[record.IssuanceRequest]

	in, request, err := current[record.IssuanceRequest](ctx, s, record.KindRequest, requestID)
	if err != nil {
		return zero, err
	}
	if err := callerIs(ctx, request.Conveyancer, "conveyancer"); err != nil {
		return zero, err
	}

	tx, err := s.commit(ctx, rules.CmdRetryAfterFailure, ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdRetryAfterFailure, Signers: []id.PartyID{request.Conveyancer}}},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{request.WithStatus(record.RequestPending)},
	})
	if err != nil {
		return zero, err
	}
	return committedAs[record.IssuanceRequest](tx, record.KindRequest)
}
