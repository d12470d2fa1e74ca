// Package ledger holds the record store and the commit collaborator. The
// notary contract is consume-once: a version may be consumed by at most one
// committed transaction, and a stale reference fails the whole bundle with
// sentinel.ErrConflict. Workflows treat that as retriable, unlike a rules
// rejection.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
)

// ProposedTransaction is a candidate bundle: consumed current versions,
// produced successors, the commands claimed, and the gathered signatures.
type ProposedTransaction struct {
	Commands   []rules.Command
	Consumed   []record.StateAndRef
	Produced   []record.State
	Signatures map[id.PartyID]signing.Signature
}

// Signers lists the parties whose signatures accompany the bundle.
func (t ProposedTransaction) Signers() []id.PartyID {
	out := make([]id.PartyID, 0, len(t.Signatures))
	for p := range t.Signatures {
		out = append(out, p)
	}
	return out
}

// Digest is what parties sign: a blake2b-256 over the commands, the consumed
// refs and the produced states. Signatures are excluded so countersigning
// does not invalidate earlier signatures.
func (t ProposedTransaction) Digest() [32]byte {
	type signable struct {
		Commands []rules.Command     `json:"commands"`
		Consumed []record.VersionRef `json:"consumed"`
		Produced []json.RawMessage   `json:"produced"`
	}
	s := signable{Commands: t.Commands}
	for _, in := range t.Consumed {
		s.Consumed = append(s.Consumed, in.Ref)
	}
	for _, out := range t.Produced {
		b, err := json.Marshal(out)
		if err != nil {
			panic(fmt.Sprintf("ledger digest: %v", err))
		}
		s.Produced = append(s.Produced, b)
	}
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("ledger digest: %v", err))
	}
	return blake2b.Sum256(b)
}

// RequiredSigners is the union of every command's declared signers.
func (t ProposedTransaction) RequiredSigners() []id.PartyID {
	var out []id.PartyID
	for _, cmd := range t.Commands {
		for _, p := range cmd.Signers {
			if !record.HasParticipant(out, p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// CommittedTransaction reports the refs a commit assigned to the produced
// states.
type CommittedTransaction struct {
	ID       id.TxID
	Produced []record.StateAndRef
}

// FirstOf returns the first produced state of the given kind.
func (t CommittedTransaction) FirstOf(kind record.Kind) (record.StateAndRef, bool) {
	for _, out := range t.Produced {
		if out.State.Kind() == kind {
			return out, true
		}
	}
	return record.StateAndRef{}, false
}

// Store is the query side of the ledger.
type Store interface {
	// Current returns the unconsumed version of a record, or
	// sentinel.ErrNotFound when none exists.
	Current(ctx context.Context, kind record.Kind, linearID id.LinearID) (record.StateAndRef, error)

	// CurrentByTitleNumber returns every current version of the kind that
	// carries the title number.
	CurrentByTitleNumber(ctx context.Context, kind record.Kind, titleNumber id.TitleNumber) ([]record.StateAndRef, error)

	// CurrentOfKind returns every current version of the kind.
	CurrentOfKind(ctx context.Context, kind record.Kind) ([]record.StateAndRef, error)

	// Outputs returns the states a committed transaction produced, so a
	// counterparty can resolve a transaction reference it received.
	Outputs(ctx context.Context, txID id.TxID) ([]record.StateAndRef, error)
}

// Notary is the commit collaborator. Commit validates the bundle, checks the
// required signatures, then atomically supersedes the consumed versions and
// appends the produced ones. Errors:
//   - *rules.Rejection when the bundle violates a rule table
//   - sentinel.ErrSignatureMissing when a required party has not signed
//   - sentinel.ErrConflict when a consumed version was already superseded
type Notary interface {
	Commit(ctx context.Context, tx ProposedTransaction) (CommittedTransaction, error)
}
