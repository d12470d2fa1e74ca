// Package workflow orchestrates the conveyancing procedures: it assembles
// proposal bundles, gathers signatures for the parties this node hosts,
// commits them through the notary and announces the results on the bus.
// All transition semantics live in the rules package; this package only
// sequences them.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	"conveyance/internal/titledata"
	"conveyance/internal/transport"
	"conveyance/internal/workflow/metrics"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/platform/sentinel"
	"conveyance/pkg/requestcontext"
)

// TransferScheduler books a durable transfer trigger for an agreement's
// completion date.
type TransferScheduler interface {
	ScheduleTransfer(ctx context.Context, titleID, agreementID id.LinearID, at time.Time) error
}

type Service struct {
	party   id.PartyID
	store   ledger.Store
	notary  ledger.Notary
	titles  titledata.Client
	bus     transport.Bus
	signers map[id.PartyID]*signing.Signer

	scheduler TransferScheduler

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithScheduler(sched TransferScheduler) Option {
	return func(s *Service) { s.scheduler = sched }
}

func New(party id.PartyID, store ledger.Store, notary ledger.Notary, titles titledata.Client, bus transport.Bus, opts ...Option) *Service {
	s := &Service{
		party:   party,
		store:   store,
		notary:  notary,
		titles:  titles,
		bus:     bus,
		signers: make(map[id.PartyID]*signing.Signer),
		logger:  slog.Default(),
		metrics: metrics.NewNop(),
		tracer:  otel.Tracer("conveyance/workflow"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterSigner adds a signing key for a party this node acts for. Bundles
// whose required signers are not all registered here cannot be committed by
// this node.
func (s *Service) RegisterSigner(signer *signing.Signer) {
	s.signers[signer.Party()] = signer
}

func (s *Service) Party() id.PartyID { return s.party }

// signAll signs the bundle digest for every required signer.
func (s *Service) signAll(tx *ledger.ProposedTransaction) error {
	digest := tx.Digest()
	tx.Signatures = make(map[id.PartyID]signing.Signature)
	for _, p := range tx.RequiredSigners() {
		signer, ok := s.signers[p]
		if !ok {
			return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("no signing key held for %s", p))
		}
		sig, err := signer.Sign(digest)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "sign bundle")
		}
		tx.Signatures[p] = sig
	}
	return nil
}

// commit signs, commits and announces a bundle, mapping notary errors to
// coded errors for the transport layer.
func (s *Service) commit(ctx context.Context, command rules.CommandType, tx ledger.ProposedTransaction) (ledger.CommittedTransaction, error) {
	ctx, span := s.tracer.Start(ctx, "workflow."+string(command))
	defer span.End()

	if err := s.signAll(&tx); err != nil {
		s.metrics.Procedure(string(command), metrics.ResultError)
		return ledger.CommittedTransaction{}, err
	}

	start := time.Now()
	committed, err := s.notary.Commit(ctx, tx)
	s.metrics.ObserveCommit(time.Since(start))

	if err != nil {
		result := metrics.ResultError
		var coded error
		switch {
		case isRejection(err):
			result = metrics.ResultRejected
			coded = dErrors.Wrap(err, dErrors.CodeUnprocessable, err.Error())
		case errors.Is(err, sentinel.ErrConflict):
			result = metrics.ResultConflict
			coded = dErrors.Wrap(err, dErrors.CodeConflict, "a consumed record version was already superseded")
		case errors.Is(err, sentinel.ErrSignatureMissing):
			coded = dErrors.Wrap(err, dErrors.CodeUnauthorized, "required signature missing")
		default:
			coded = dErrors.Wrap(err, dErrors.CodeInternal, "commit bundle")
		}
		s.metrics.Procedure(string(command), result)
		s.logger.WarnContext(ctx, "bundle not committed",
			"command", command,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return ledger.CommittedTransaction{}, coded
	}

	s.metrics.Procedure(string(command), metrics.ResultCommitted)
	s.logger.InfoContext(ctx, "bundle committed",
		"command", command,
		"tx_id", committed.ID,
		"request_id", requestcontext.RequestID(ctx),
	)

	if err := s.bus.Publish(ctx, transport.Message{
		Procedure: string(command),
		TxID:      committed.ID,
		Sender:    s.party,
	}); err != nil {
		// The commit stands; counterparties fall back to polling the store.
		s.logger.ErrorContext(ctx, "announce commit failed", "tx_id", committed.ID, "error", err)
	}
	return committed, nil
}

func isRejection(err error) bool {
	_, ok := rules.AsRejection(err)
	return ok
}

// current loads the unconsumed version of a record and asserts its type.
func current[T record.State](ctx context.Context, s *Service, kind record.Kind, linearID id.LinearID) (record.StateAndRef, T, error) {
	var zero T
	ref, err := s.store.Current(ctx, kind, linearID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return record.StateAndRef{}, zero, dErrors.Wrap(err, dErrors.CodeNotFound, fmt.Sprintf("no current %s %s", kind, linearID))
	}
	if err != nil {
		return record.StateAndRef{}, zero, dErrors.Wrap(err, dErrors.CodeInternal, "load record")
	}
	state, ok := ref.State.(T)
	if !ok {
		return record.StateAndRef{}, zero, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("record %s has unexpected type", linearID))
	}
	return ref, state, nil
}

func callerOf(ctx context.Context) id.PartyID {
	return requestcontext.Party(ctx)
}

// callerIs rejects a procedure invoked by a party other than the expected
// role holder.
func callerIs(ctx context.Context, party id.PartyID, role string) error {
	caller := callerOf(ctx)
	if caller != party {
		return dErrors.New(dErrors.CodeUnauthorized, fmt.Sprintf("only the %s %s may perform this action", role, party))
	}
	return nil
}
