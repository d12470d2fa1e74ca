package workflow

import (
	"context"
	"errors"
	"fmt"

	"conveyance/internal/record"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/platform/sentinel"
)

// GetRecord returns the current version of any record.
func (s *Service) GetRecord(ctx context.Context, kind record.Kind, linearID id.LinearID) (record.StateAndRef, error) {
	ref, err := s.store.Current(ctx, kind, linearID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return record.StateAndRef{}, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("no current %s %s", kind, linearID))
	}
	if err != nil {
		return record.StateAndRef{}, dErrors.Wrap(err, dErrors.CodeInternal, "load record")
	}
	return ref, nil
}

// TitlesByNumber returns the current titles registered under a title number;
// at most one exists when the issuance rules have been honoured.
func (s *Service) TitlesByNumber(ctx context.Context, titleNumber id.TitleNumber) ([]record.StateAndRef, error) {
	out, err := s.store.CurrentByTitleNumber(ctx, record.KindTitle, titleNumber)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load titles")
	}
	return out, nil
}

// TransactionOutputs resolves a transaction announcement into the versions
// it produced.
func (s *Service) TransactionOutputs(ctx context.Context, txID id.TxID) ([]record.StateAndRef, error) {
	out, err := s.store.Outputs(ctx, txID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("no transaction %s", txID))
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load transaction outputs")
	}
	return out, nil
}
