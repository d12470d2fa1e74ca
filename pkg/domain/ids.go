// Package domain holds the typed identifiers shared across the service.
// Typed IDs prevent cross-type assignment at compile time; Parse functions
// enforce validity at trust boundaries.
package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	dErrors "conveyance/pkg/domain-errors"
)

// LinearID is the stable identity of a record across its versions.
type LinearID uuid.UUID

// TxID identifies a committed transaction on the ledger.
type TxID uuid.UUID

// PartyID names a registered participant (registry, conveyancer, lender).
type PartyID string

// TitleNumber is the registry's identifier for a title, e.g. "ZQV888860".
type TitleNumber string

func NewLinearID() LinearID { return LinearID(uuid.New()) }
func NewTxID() TxID         { return TxID(uuid.New()) }

func (id LinearID) String() string { return uuid.UUID(id).String() }
func (id LinearID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id TxID) String() string { return uuid.UUID(id).String() }
func (id TxID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// MarshalText renders the id in canonical UUID form; without it a defined
// uuid type would serialize as a raw byte array.
func (id LinearID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *LinearID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = LinearID(u)
	return nil
}

func (id TxID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *TxID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = TxID(u)
	return nil
}

func (p PartyID) String() string { return string(p) }
func (p PartyID) IsZero() bool   { return p == "" }

func (t TitleNumber) String() string { return string(t) }

// ParseLinearID validates and converts a string into a LinearID.
func ParseLinearID(s string) (LinearID, error) {
	u, err := parseUUID(s, "linear id")
	return LinearID(u), err
}

// ParseTxID validates and converts a string into a TxID.
func ParseTxID(s string) (TxID, error) {
	u, err := parseUUID(s, "tx id")
	return TxID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" must not be nil")
	}
	return u, nil
}

// ParsePartyID validates a party identifier. Party names come from the
// network map, so only emptiness and whitespace abuse are rejected here.
func ParsePartyID(s string) (PartyID, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "party id is required")
	}
	return PartyID(trimmed), nil
}

var titleNumberPattern = regexp.MustCompile(`^[A-Z]{1,3}[0-9]{1,9}$`)

// ParseTitleNumber validates the registry title number format.
func ParseTitleNumber(s string) (TitleNumber, error) {
	if !titleNumberPattern.MatchString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid title number")
	}
	return TitleNumber(s), nil
}
