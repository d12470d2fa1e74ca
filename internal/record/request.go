package record

import (
	id "conveyance/pkg/domain"
)

// RequestStatus is the issuance request state machine. Transitions are
// enforced by the rules package: Pending is the only entry state, Approved
// and AlreadyIssued are terminal, and Failed re-enters Pending via retry.
type RequestStatus string

const (
	RequestPending       RequestStatus = "PENDING"
	RequestApproved      RequestStatus = "APPROVED"
	RequestAlreadyIssued RequestStatus = "TITLE_ALREADY_ISSUED"
	RequestFailed        RequestStatus = "FAILED"
)

// IssuanceRequest asks the registry to issue a title on the ledger on behalf
// of the seller.
type IssuanceRequest struct {
	ID          id.LinearID     `json:"id"`
	TitleNumber id.TitleNumber  `json:"title_number"`
	TitleIssuer id.PartyID      `json:"title_issuer"`
	Conveyancer id.PartyID      `json:"conveyancer"`
	Seller      CustomerDetails `json:"seller"`
	Status      RequestStatus   `json:"status"`
}

func (s IssuanceRequest) LinearID() id.LinearID { return s.ID }
func (s IssuanceRequest) Kind() Kind            { return KindRequest }

func (s IssuanceRequest) Participants() []id.PartyID {
	return []id.PartyID{s.TitleIssuer, s.Conveyancer}
}

// WithStatus copies the request with a new status, preserving everything
// else including the linear id.
func (s IssuanceRequest) WithStatus(status RequestStatus) IssuanceRequest {
	s.Status = status
	return s
}
