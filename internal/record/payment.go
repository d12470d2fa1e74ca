package record

import (
	id "conveyance/pkg/domain"
)

// PaymentStatus tracks settlement of the purchase funds.
type PaymentStatus string

const (
	PaymentRequested PaymentStatus = "REQUESTED"
	PaymentConfirmed PaymentStatus = "CONFIRMED"
)

// PaymentConfirmation records the settling party's confirmation that the
// purchase price has been received for an agreement. The transfer rules
// require a Confirmed payment before a title changes hands.
type PaymentConfirmation struct {
	ID               id.LinearID     `json:"id"`
	AgreementID      id.LinearID     `json:"agreement_id"`
	Buyer            CustomerDetails `json:"buyer"`
	Seller           CustomerDetails `json:"seller"`
	PurchasePrice    id.Money        `json:"purchase_price"`
	SettlingParty    id.PartyID      `json:"settling_party"`
	BuyerConveyancer id.PartyID      `json:"buyer_conveyancer"`
	Status           PaymentStatus   `json:"status"`
}

func (s PaymentConfirmation) LinearID() id.LinearID { return s.ID }
func (s PaymentConfirmation) Kind() Kind            { return KindPayment }

func (s PaymentConfirmation) Participants() []id.PartyID {
	return []id.PartyID{s.SettlingParty, s.BuyerConveyancer}
}

// WithStatus copies the confirmation with a new status.
func (s PaymentConfirmation) WithStatus(status PaymentStatus) PaymentConfirmation {
	s.Status = status
	return s
}
