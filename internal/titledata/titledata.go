// Package titledata fetches authoritative title data from the registry's
// title API. The workflow consults it when deciding whether an issuance
// request can be approved.
package titledata

import (
	"context"

	"conveyance/internal/record"
	id "conveyance/pkg/domain"
)

// Data is the registry's view of a title, keyed by title number.
type Data struct {
	TitleNumber  id.TitleNumber         `json:"title_number"`
	Address      record.Address         `json:"address"`
	Owner        record.CustomerDetails `json:"owner"`
	OwnerLender  id.PartyID             `json:"owner_lender,omitempty"`
	Guarantee    record.TitleGuarantee  `json:"guarantee"`
	Charges      []record.Charge        `json:"charges"`
	Restrictions []record.Restriction   `json:"restrictions"`
}

// Client looks up title data. Get returns sentinel.ErrNotFound when the
// title number is unknown and sentinel.ErrUnavailable when the source
// cannot be reached.
type Client interface {
	Get(ctx context.Context, titleNumber id.TitleNumber) (Data, error)
}
