// Package record holds the versioned domain entities shared between the
// parties: instructions, issuance requests, titles, charge registers,
// agreements and payment confirmations. Each value is immutable per version;
// evolution happens by consuming the current version and producing a
// successor with the same linear id.
package record

import (
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	id "conveyance/pkg/domain"
)

// Kind discriminates record types in stores and proposals.
type Kind string

const (
	KindInstruction Kind = "conveyancer_instruction"
	KindRequest     Kind = "issuance_request"
	KindTitle       Kind = "title"
	KindCharges     Kind = "charges_and_restrictions"
	KindAgreement   Kind = "agreement"
	KindPayment     Kind = "payment_confirmation"
)

// State is one version of a linear record.
type State interface {
	LinearID() id.LinearID
	Kind() Kind
	Participants() []id.PartyID
}

// VersionRef points at one produced state inside a committed transaction.
type VersionRef struct {
	TxID  id.TxID `json:"tx_id"`
	Index int     `json:"index"`
}

func (r VersionRef) String() string {
	return fmt.Sprintf("%s:%d", r.TxID, r.Index)
}

// StateAndRef pairs a state with its position on the ledger.
type StateAndRef struct {
	Ref   VersionRef
	State State
}

// Digest returns a stable blake2b-256 digest of a state. Constructors keep
// charge and restriction collections sorted, so equal sets digest equally
// regardless of the order they arrived in.
func Digest(s State) [32]byte {
	b, err := json.Marshal(s)
	if err != nil {
		// All state types are plain data; marshalling cannot fail.
		panic(fmt.Sprintf("record digest: %v", err))
	}
	return blake2b.Sum256(b)
}

// SameParticipants reports whether two participant lists contain the same
// parties, ignoring order and duplicates.
func SameParticipants(a, b []id.PartyID) bool {
	return partySet(a).equal(partySet(b))
}

// HasParticipant reports whether party appears in the list.
func HasParticipant(parties []id.PartyID, party id.PartyID) bool {
	for _, p := range parties {
		if p == party {
			return true
		}
	}
	return false
}

type set map[id.PartyID]struct{}

func partySet(parties []id.PartyID) set {
	s := make(set, len(parties))
	for _, p := range parties {
		if !p.IsZero() {
			s[p] = struct{}{}
		}
	}
	return s
}

func (s set) equal(o set) bool {
	if len(s) != len(o) {
		return false
	}
	for p := range s {
		if _, ok := o[p]; !ok {
			return false
		}
	}
	return true
}
