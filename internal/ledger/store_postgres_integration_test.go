//go:build integration

package ledger_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
	"conveyance/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite
	ctx     context.Context
	pool    *pgxpool.Pool
	keyring *signing.Keyring
	signers map[id.PartyID]*signing.Signer
	ledger  *ledger.PostgresLedger
}

func TestPostgresLedgerSuite(t *testing.T) {
	pg := containers.NewPostgresContainer(t)

	pool, err := pgxpool.New(context.Background(), pg.DSN)
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	suite.Run(t, &PostgresLedgerSuite{pool: pool})
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.keyring = signing.NewKeyring()
	s.signers = make(map[id.PartyID]*signing.Signer)
	for _, p := range []id.PartyID{issuer, conveyancer} {
		signer, err := signing.NewSigner(p)
		s.Require().NoError(err)
		s.signers[p] = signer
		s.keyring.Register(p, signer.Public())
	}

	_, err := s.pool.Exec(s.ctx, "DROP TABLE IF EXISTS ledger_versions")
	s.Require().NoError(err)

	s.ledger = ledger.NewPostgres(s.pool, rules.New(s.keyring), s.keyring)
	s.Require().NoError(s.ledger.EnsureSchema(s.ctx))
}

func (s *PostgresLedgerSuite) sign(tx *ledger.ProposedTransaction, parties ...id.PartyID) {
	digest := tx.Digest()
	tx.Signatures = make(map[id.PartyID]signing.Signature)
	for _, p := range parties {
		sig, err := s.signers[p].Sign(digest)
		s.Require().NoError(err)
		tx.Signatures[p] = sig
	}
}

func (s *PostgresLedgerSuite) commitInstruction() (record.ConveyancerInstruction, record.StateAndRef) {
	instruction := record.ConveyancerInstruction{
		ID:          id.NewLinearID(),
		TitleNumber: "ZQV888860",
		CaseRef:     "case-pg-1",
		TitleIssuer: issuer,
		Conveyancer: conveyancer,
		User:        record.CustomerDetails{Identity: 101, Name: "Alice Seller"},
	}
	tx := ledger.ProposedTransaction{
		Commands: []rules.Command{{Type: rules.CmdCreateInstruction, Signers: []id.PartyID{issuer}}},
		Produced: []record.State{instruction},
	}
	s.sign(&tx, issuer)

	committed, err := s.ledger.Commit(s.ctx, tx)
	s.Require().NoError(err)
	s.Require().Len(committed.Produced, 1)
	return instruction, committed.Produced[0]
}

func (s *PostgresLedgerSuite) consumeInstruction(in record.StateAndRef, instruction record.ConveyancerInstruction) error {
	request := record.IssuanceRequest{
		ID:          id.NewLinearID(),
		TitleNumber: instruction.TitleNumber,
		TitleIssuer: instruction.TitleIssuer,
		Conveyancer: instruction.Conveyancer,
		Seller:      instruction.User,
		Status:      record.RequestPending,
	}
	tx := ledger.ProposedTransaction{
		Commands: []rules.Command{
			{Type: rules.CmdAcceptInstruction, Signers: []id.PartyID{conveyancer}},
			{Type: rules.CmdRequestIssuance, Signers: []id.PartyID{conveyancer}},
		},
		Consumed: []record.StateAndRef{in},
		Produced: []record.State{request},
	}
	s.sign(&tx, conveyancer)
	_, err := s.ledger.Commit(s.ctx, tx)
	return err
}

func (s *PostgresLedgerSuite) TestRoundTrip() {
	instruction, produced := s.commitInstruction()

	current, err := s.ledger.Current(s.ctx, record.KindInstruction, instruction.ID)
	s.Require().NoError(err)
	s.Equal(produced.Ref, current.Ref)
	s.Equal(instruction, current.State)

	byNumber, err := s.ledger.CurrentByTitleNumber(s.ctx, record.KindInstruction, "ZQV888860")
	s.Require().NoError(err)
	s.Len(byNumber, 1)

	ofKind, err := s.ledger.CurrentOfKind(s.ctx, record.KindInstruction)
	s.Require().NoError(err)
	s.Len(ofKind, 1)

	outputs, err := s.ledger.Outputs(s.ctx, produced.Ref.TxID)
	s.Require().NoError(err)
	s.Len(outputs, 1)
}

func (s *PostgresLedgerSuite) TestConsumeOnce() {
	instruction, in := s.commitInstruction()

	s.Require().NoError(s.consumeInstruction(in, instruction))

	err := s.consumeInstruction(in, instruction)
	s.Require().Error(err)
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.ledger.Current(s.ctx, record.KindInstruction, instruction.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresLedgerSuite) TestConcurrentConsumeLosesOnce() {
	instruction, in := s.commitInstruction()

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- s.consumeInstruction(in, instruction) }()
	}

	var failures int
	for range 2 {
		if err := <-errs; err != nil {
			s.ErrorIs(err, sentinel.ErrConflict)
			failures++
		}
	}
	s.Equal(1, failures)
}

func (s *PostgresLedgerSuite) TestSurvivesReopen() {
	instruction, _ := s.commitInstruction()

	reopened := ledger.NewPostgres(s.pool, rules.New(s.keyring), s.keyring)
	current, err := reopened.Current(s.ctx, record.KindInstruction, instruction.ID)
	s.Require().NoError(err)
	s.Equal(instruction, current.State)
}
