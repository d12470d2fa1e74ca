package record

import (
	"slices"
	"strings"
	"time"

	id "conveyance/pkg/domain"
)

// Charge is a lender's registered interest in a title. Charges order by date.
type Charge struct {
	Date   time.Time  `json:"date"`
	Lender id.PartyID `json:"lender"`
	Amount id.Money   `json:"amount"`
}

func (c Charge) Equal(o Charge) bool {
	return c.Date.Equal(o.Date) && c.Lender == o.Lender && c.Amount == o.Amount
}

// RestrictionAction declares what a proposed transition wants done with a
// restriction.
type RestrictionAction string

const (
	ActionNoAction       RestrictionAction = "NO_ACTION"
	ActionDischarge      RestrictionAction = "DISCHARGE"
	ActionAddRestriction RestrictionAction = "ADD_RESTRICTION"
)

// Restriction limits dealings on a title until its consenting party agrees.
// A charge restriction additionally carries the charge it protects; the
// variant is tagged by the optional Charge field rather than subtyping.
// Restrictions order by id.
type Restriction struct {
	RestrictionID   string            `json:"restriction_id"`
	Text            string            `json:"text"`
	ConsentingParty id.PartyID        `json:"consenting_party"`
	Action          RestrictionAction `json:"action"`
	ConsentGiven    bool              `json:"consent_given"`
	Charge          *Charge           `json:"charge,omitempty"`
}

func (r Restriction) IsChargeRestriction() bool { return r.Charge != nil }

// ChargesStatus tracks the charge register's own lifecycle, which evolves
// independently of the title once issued.
type ChargesStatus string

const (
	ChargesIssued                 ChargesStatus = "ISSUED"
	ChargesRequestDischarge       ChargesStatus = "REQUEST_DISCHARGE"
	ChargesDischargeConsented     ChargesStatus = "DISCHARGE_CONSENTED"
	ChargesPendingBuyerApproval   ChargesStatus = "PENDING_BUYER_APPROVAL"
	ChargesAssignBuyerConveyancer ChargesStatus = "ASSIGN_BUYER_CONVEYANCER"
	ChargesNewChargeRequested     ChargesStatus = "NEW_CHARGE_REQUESTED"
	ChargesNewChargeConsented     ChargesStatus = "NEW_CHARGE_CONSENTED"
	ChargesTransferred            ChargesStatus = "TRANSFERRED"
)

// ChargesAndRestrictions is the one-to-one companion of a Title carrying its
// encumbrances through discharge and re-charge during a sale.
type ChargesAndRestrictions struct {
	ID               id.LinearID    `json:"id"`
	TitleNumber      id.TitleNumber `json:"title_number"`
	OwnerConveyancer id.PartyID     `json:"owner_conveyancer"`
	BuyerConveyancer id.PartyID     `json:"buyer_conveyancer,omitempty"`
	BuyerLender      id.PartyID     `json:"buyer_lender,omitempty"`
	Restrictions     []Restriction  `json:"restrictions"`
	Charges          []Charge       `json:"charges"`

	DischargeConsented bool `json:"discharge_consented"`
	NewChargeConsented bool `json:"new_charge_consented"`

	Status ChargesStatus `json:"status"`
}

func (c ChargesAndRestrictions) LinearID() id.LinearID { return c.ID }
func (c ChargesAndRestrictions) Kind() Kind            { return KindCharges }

func (c ChargesAndRestrictions) Participants() []id.PartyID {
	parties := []id.PartyID{c.OwnerConveyancer}
	if !c.BuyerConveyancer.IsZero() {
		parties = append(parties, c.BuyerConveyancer)
	}
	if !c.BuyerLender.IsZero() {
		parties = append(parties, c.BuyerLender)
	}
	for _, r := range c.Restrictions {
		if !r.ConsentingParty.IsZero() && !HasParticipant(parties, r.ConsentingParty) {
			parties = append(parties, r.ConsentingParty)
		}
	}
	return parties
}

// Normalize sorts the collections so digests and equality checks are
// order-independent. Constructors and With* copies call it; external input
// must pass through it before validation.
func (c ChargesAndRestrictions) Normalize() ChargesAndRestrictions {
	c.Charges = SortCharges(c.Charges)
	c.Restrictions = SortRestrictions(c.Restrictions)
	return c
}

// WithStatus copies the record with a new status, preserving the linear id.
func (c ChargesAndRestrictions) WithStatus(status ChargesStatus) ChargesAndRestrictions {
	out := c.clone()
	out.Status = status
	return out
}

// WithRestrictions copies the record with a replacement restriction set.
func (c ChargesAndRestrictions) WithRestrictions(status ChargesStatus, restrictions []Restriction) ChargesAndRestrictions {
	out := c.clone()
	out.Status = status
	out.Restrictions = SortRestrictions(restrictions)
	return out
}

// WithBuyerParties copies the record with the buyer side attached.
func (c ChargesAndRestrictions) WithBuyerParties(status ChargesStatus, buyerConveyancer, buyerLender id.PartyID) ChargesAndRestrictions {
	out := c.clone()
	out.Status = status
	out.BuyerConveyancer = buyerConveyancer
	out.BuyerLender = buyerLender
	return out
}

// WithConsentFlags copies the record with updated consent flags.
func (c ChargesAndRestrictions) WithConsentFlags(status ChargesStatus, discharge, newCharge bool) ChargesAndRestrictions {
	out := c.clone()
	out.Status = status
	out.DischargeConsented = discharge
	out.NewChargeConsented = newCharge
	return out
}

// WithCharges copies the record with a replacement charge set.
func (c ChargesAndRestrictions) WithCharges(status ChargesStatus, charges []Charge) ChargesAndRestrictions {
	out := c.clone()
	out.Status = status
	out.Charges = SortCharges(charges)
	return out
}

func (c ChargesAndRestrictions) clone() ChargesAndRestrictions {
	c.Charges = slices.Clone(c.Charges)
	c.Restrictions = cloneRestrictions(c.Restrictions)
	return c
}

func cloneRestrictions(in []Restriction) []Restriction {
	out := slices.Clone(in)
	for i := range out {
		if out[i].Charge != nil {
			ch := *out[i].Charge
			out[i].Charge = &ch
		}
	}
	return out
}

// SortCharges returns a copy ordered by date, then lender for stability.
func SortCharges(charges []Charge) []Charge {
	out := slices.Clone(charges)
	slices.SortStableFunc(out, func(a, b Charge) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return strings.Compare(string(a.Lender), string(b.Lender))
	})
	return out
}

// SortRestrictions returns a copy ordered by restriction id.
func SortRestrictions(restrictions []Restriction) []Restriction {
	out := cloneRestrictions(restrictions)
	slices.SortStableFunc(out, func(a, b Restriction) int {
		return strings.Compare(a.RestrictionID, b.RestrictionID)
	})
	return out
}

// SameCharges compares two charge collections as sets.
func SameCharges(a, b []Charge) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := SortCharges(a), SortCharges(b)
	for i := range as {
		if !as[i].Equal(bs[i]) {
			return false
		}
	}
	return true
}

// SameRestrictionIDs compares two restriction collections by id as sets.
func SameRestrictionIDs(a, b []Restriction) bool {
	if len(a) != len(b) {
		return false
	}
	as, bs := SortRestrictions(a), SortRestrictions(b)
	for i := range as {
		if as[i].RestrictionID != bs[i].RestrictionID {
			return false
		}
	}
	return true
}
