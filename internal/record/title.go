package record

import (
	"slices"

	id "conveyance/pkg/domain"
)

// TitleStatus tracks a title through a sale. Issued titles move to
// PendingBuyerApproval when the owner requests a transfer, to
// AssignBuyerConveyancer once the buyer's conveyancer accepts, and finally
// to Transferred on completion.
type TitleStatus string

const (
	TitleIssued                 TitleStatus = "ISSUED"
	TitlePendingBuyerApproval   TitleStatus = "PENDING_BUYER_APPROVAL"
	TitleAssignBuyerConveyancer TitleStatus = "ASSIGN_BUYER_CONVEYANCER"
	TitleTransferred            TitleStatus = "TRANSFERRED"
)

// TitleGuarantee is the class of guarantee the registry gives on issue.
type TitleGuarantee string

const (
	GuaranteeFull    TitleGuarantee = "FULL"
	GuaranteeLimited TitleGuarantee = "LIMITED"
)

// Title is the registered title itself. The charge register lives in a
// linked ChargesAndRestrictions record (ChargesRecordID) that evolves
// independently once issued; the title keeps a snapshot of the sets it was
// issued with for transfer-time reconciliation.
type Title struct {
	ID               id.LinearID     `json:"id"`
	TitleNumber      id.TitleNumber  `json:"title_number"`
	Address          Address         `json:"address"`
	Owner            CustomerDetails `json:"owner"`
	OwnerConveyancer id.PartyID      `json:"owner_conveyancer"`
	OwnerLender      id.PartyID      `json:"owner_lender"`
	BuyerConveyancer id.PartyID      `json:"buyer_conveyancer,omitempty"`
	Issuer           id.PartyID      `json:"issuer"`
	Guarantee        TitleGuarantee  `json:"guarantee"`
	Status           TitleStatus     `json:"status"`
	Charges          []Charge        `json:"charges"`
	Restrictions     []Restriction   `json:"restrictions"`
	ChargesRecordID  id.LinearID     `json:"charges_record_id"`

	// OwnerSignature is the owner conveyancer's detached signature over the
	// previous version's digest, populated when a transfer is requested and
	// verified by the transfer rules.
	OwnerSignature string `json:"owner_signature,omitempty"`
}

func (s Title) LinearID() id.LinearID { return s.ID }
func (s Title) Kind() Kind            { return KindTitle }

func (s Title) Participants() []id.PartyID {
	parties := []id.PartyID{s.Issuer, s.OwnerConveyancer}
	if !s.OwnerLender.IsZero() {
		parties = append(parties, s.OwnerLender)
	}
	if !s.BuyerConveyancer.IsZero() {
		parties = append(parties, s.BuyerConveyancer)
	}
	return parties
}

// Normalize sorts the charge and restriction snapshots.
func (s Title) Normalize() Title {
	s.Charges = SortCharges(s.Charges)
	s.Restrictions = SortRestrictions(s.Restrictions)
	return s
}

// WithTransferRequested copies the title into the pending-approval state,
// attaching the proposed buyer conveyancer and the owner's signature.
func (s Title) WithTransferRequested(buyerConveyancer id.PartyID, ownerSignature string) Title {
	out := s.clone()
	out.Status = TitlePendingBuyerApproval
	out.BuyerConveyancer = buyerConveyancer
	out.OwnerSignature = ownerSignature
	return out
}

// WithBuyerConveyancerAssigned copies the title with the buyer conveyancer
// confirmed.
func (s Title) WithBuyerConveyancerAssigned() Title {
	out := s.clone()
	out.Status = TitleAssignBuyerConveyancer
	return out
}

// WithNewOwner copies the title transferred to the buyer. The buyer's
// conveyancer and lender take over the owner-side roles.
func (s Title) WithNewOwner(owner CustomerDetails, ownerConveyancer, ownerLender id.PartyID) Title {
	out := s.clone()
	out.Status = TitleTransferred
	out.Owner = owner
	out.OwnerConveyancer = ownerConveyancer
	out.OwnerLender = ownerLender
	out.BuyerConveyancer = ""
	out.OwnerSignature = ""
	return out
}

func (s Title) clone() Title {
	s.Charges = slices.Clone(s.Charges)
	s.Restrictions = cloneRestrictions(s.Restrictions)
	return s
}
