package record

import (
	"time"

	id "conveyance/pkg/domain"
)

// AgreementStatus tracks a sales agreement from draft to completion.
// SellerSign moves Approved to Signed, BuyerSign moves Signed to Completed,
// and the scheduled transfer at the completion date moves Completed to
// Transferred.
type AgreementStatus string

const (
	AgreementCreated     AgreementStatus = "CREATED"
	AgreementApproved    AgreementStatus = "APPROVED"
	AgreementSigned      AgreementStatus = "SIGNED"
	AgreementCompleted   AgreementStatus = "COMPLETED"
	AgreementTransferred AgreementStatus = "TRANSFERRED"
)

// Agreement is the sales contract between buyer and seller for one title.
type Agreement struct {
	ID      id.LinearID `json:"id"`
	TitleID id.LinearID `json:"title_id"`

	Buyer             CustomerDetails `json:"buyer"`
	Seller            CustomerDetails `json:"seller"`
	BuyerConveyancer  id.PartyID      `json:"buyer_conveyancer"`
	SellerConveyancer id.PartyID      `json:"seller_conveyancer"`

	CreationDate   time.Time `json:"creation_date"`
	CompletionDate time.Time `json:"completion_date"`

	ContractRate        float64        `json:"contract_rate"`
	PurchasePrice       id.Money       `json:"purchase_price"`
	Deposit             id.Money       `json:"deposit"`
	ContentsPrice       id.Money       `json:"contents_price"`
	Balance             id.Money       `json:"balance"`
	Guarantee           TitleGuarantee `json:"guarantee"`
	SpecificPerformance bool           `json:"specific_performance"`

	MortgageTermsAdded bool `json:"mortgage_terms_added"`

	// Compact JWS signatures over the Approved version's digest.
	SellerSignature string `json:"seller_signature,omitempty"`
	BuyerSignature  string `json:"buyer_signature,omitempty"`

	Status AgreementStatus `json:"status"`
}

func (s Agreement) LinearID() id.LinearID { return s.ID }
func (s Agreement) Kind() Kind            { return KindAgreement }

func (s Agreement) Participants() []id.PartyID {
	return []id.PartyID{s.BuyerConveyancer, s.SellerConveyancer}
}

// WithStatus copies the agreement with a new status only.
func (s Agreement) WithStatus(status AgreementStatus) Agreement {
	s.Status = status
	return s
}

// WithMortgageTerms copies the agreement approved with mortgage terms added.
func (s Agreement) WithMortgageTerms() Agreement {
	s.Status = AgreementApproved
	s.MortgageTermsAdded = true
	return s
}

// WithSellerSignature copies the agreement signed by the seller side.
func (s Agreement) WithSellerSignature(sig string) Agreement {
	s.Status = AgreementSigned
	s.SellerSignature = sig
	return s
}

// WithBuyerSignature copies the agreement countersigned by the buyer side;
// the contract is then complete.
func (s Agreement) WithBuyerSignature(sig string) Agreement {
	s.Status = AgreementCompleted
	s.BuyerSignature = sig
	return s
}
