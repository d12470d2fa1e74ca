package ledger

import (
	"context"
	"fmt"
	"sync"

	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
	"conveyance/pkg/platform/sentinel"
)

type versionEntry struct {
	state      record.State
	consumedBy id.TxID // zero while current
}

type currentKey struct {
	kind     record.Kind
	linearID id.LinearID
}

// MemoryLedger is the in-process ledger: an append-only version log plus a
// current-version index, guarded by one mutex. It implements both Store and
// Notary and backs the unit tests; the consume-once contract it enforces is
// the one any durable implementation must match.
type MemoryLedger struct {
	mu        sync.RWMutex
	validator *rules.Validator
	keyring   *signing.Keyring

	versions map[record.VersionRef]*versionEntry
	current  map[currentKey]record.VersionRef
	txs      map[id.TxID][]record.VersionRef
}

func NewMemory(validator *rules.Validator, keyring *signing.Keyring) *MemoryLedger {
	return &MemoryLedger{
		validator: validator,
		keyring:   keyring,
		versions:  make(map[record.VersionRef]*versionEntry),
		current:   make(map[currentKey]record.VersionRef),
		txs:       make(map[id.TxID][]record.VersionRef),
	}
}

func (l *MemoryLedger) Current(_ context.Context, kind record.Kind, linearID id.LinearID) (record.StateAndRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ref, ok := l.current[currentKey{kind: kind, linearID: linearID}]
	if !ok {
		return record.StateAndRef{}, fmt.Errorf("current %s %s: %w", kind, linearID, sentinel.ErrNotFound)
	}
	return record.StateAndRef{Ref: ref, State: l.versions[ref].state}, nil
}

func (l *MemoryLedger) CurrentByTitleNumber(_ context.Context, kind record.Kind, titleNumber id.TitleNumber) ([]record.StateAndRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []record.StateAndRef
	for key, ref := range l.current {
		if key.kind != kind {
			continue
		}
		entry := l.versions[ref]
		if titleNumberOf(entry.state) == string(titleNumber) {
			out = append(out, record.StateAndRef{Ref: ref, State: entry.state})
		}
	}
	return out, nil
}

func (l *MemoryLedger) CurrentOfKind(_ context.Context, kind record.Kind) ([]record.StateAndRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []record.StateAndRef
	for key, ref := range l.current {
		if key.kind != kind {
			continue
		}
		out = append(out, record.StateAndRef{Ref: ref, State: l.versions[ref].state})
	}
	return out, nil
}

func (l *MemoryLedger) Outputs(_ context.Context, txID id.TxID) ([]record.StateAndRef, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	refs, ok := l.txs[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", txID, sentinel.ErrNotFound)
	}
	out := make([]record.StateAndRef, 0, len(refs))
	for _, ref := range refs {
		out = append(out, record.StateAndRef{Ref: ref, State: l.versions[ref].state})
	}
	return out, nil
}

// Commit validates, checks signatures, then applies the bundle atomically
// under the ledger lock.
func (l *MemoryLedger) Commit(_ context.Context, tx ProposedTransaction) (CommittedTransaction, error) {
	if err := l.validator.Validate(rules.Proposal{
		Commands: tx.Commands,
		Consumed: tx.Consumed,
		Produced: tx.Produced,
		Signers:  tx.Signers(),
	}); err != nil {
		return CommittedTransaction{}, err
	}
	if err := VerifySignatures(l.keyring, tx); err != nil {
		return CommittedTransaction{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Consume-once: every consumed ref must still be the current version.
	for _, in := range tx.Consumed {
		key := currentKey{kind: in.State.Kind(), linearID: in.State.LinearID()}
		current, ok := l.current[key]
		if !ok || current != in.Ref {
			return CommittedTransaction{}, fmt.Errorf("version %s already superseded: %w", in.Ref, sentinel.ErrConflict)
		}
	}

	txID := id.NewTxID()
	committed := CommittedTransaction{ID: txID}

	for _, in := range tx.Consumed {
		l.versions[in.Ref].consumedBy = txID
		delete(l.current, currentKey{kind: in.State.Kind(), linearID: in.State.LinearID()})
	}
	for i, out := range tx.Produced {
		ref := record.VersionRef{TxID: txID, Index: i}
		l.versions[ref] = &versionEntry{state: out}
		l.current[currentKey{kind: out.Kind(), linearID: out.LinearID()}] = ref
		l.txs[txID] = append(l.txs[txID], ref)
		committed.Produced = append(committed.Produced, record.StateAndRef{Ref: ref, State: out})
	}

	return committed, nil
}

// VerifySignatures checks that every required signer has produced a valid
// signature over the bundle digest. Shared by the memory and Postgres
// notaries.
func VerifySignatures(keyring *signing.Keyring, tx ProposedTransaction) error {
	digest := tx.Digest()
	for _, party := range tx.RequiredSigners() {
		sig, ok := tx.Signatures[party]
		if !ok {
			return fmt.Errorf("required signer %s: %w", party, sentinel.ErrSignatureMissing)
		}
		if err := keyring.Verify(party, sig, digest); err != nil {
			return fmt.Errorf("signature of %s rejected: %w", party, err)
		}
	}
	return nil
}
