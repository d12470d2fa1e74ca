package record_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conveyance/internal/record"
	id "conveyance/pkg/domain"
)

func charge(day int, lender id.PartyID, minor int64) record.Charge {
	return record.Charge{
		Date:   time.Date(2026, 3, day, 0, 0, 0, 0, time.UTC),
		Lender: lender,
		Amount: id.GBP(minor),
	}
}

func TestSameChargesIgnoresOrder(t *testing.T) {
	a := []record.Charge{charge(1, "LenderCo", 100_000_00), charge(9, "OtherBank", 50_000_00)}
	b := []record.Charge{charge(9, "OtherBank", 50_000_00), charge(1, "LenderCo", 100_000_00)}

	assert.True(t, record.SameCharges(a, b))
	assert.False(t, record.SameCharges(a, a[:1]))
}

func TestSameRestrictionIDsIgnoresOrderAndPayload(t *testing.T) {
	a := []record.Restriction{
		{RestrictionID: "R1", Text: "no disposition", ConsentingParty: "LenderCo"},
		{RestrictionID: "R2", Text: "leasehold notice", ConsentingParty: "OtherBank"},
	}
	b := []record.Restriction{
		{RestrictionID: "R2", Text: "leasehold notice", ConsentingParty: "OtherBank", Action: record.ActionDischarge},
		{RestrictionID: "R1", Text: "no disposition", ConsentingParty: "LenderCo"},
	}

	assert.True(t, record.SameRestrictionIDs(a, b))
}

func TestDigestIsOrderIndependentAfterNormalize(t *testing.T) {
	base := record.ChargesAndRestrictions{
		ID:               id.NewLinearID(),
		TitleNumber:      "ZQV888860",
		OwnerConveyancer: "ConveyItAll",
		Status:           record.ChargesIssued,
	}

	first := base
	first.Charges = []record.Charge{charge(1, "LenderCo", 1000), charge(9, "OtherBank", 2000)}
	second := base
	second.Charges = []record.Charge{charge(9, "OtherBank", 2000), charge(1, "LenderCo", 1000)}

	assert.Equal(t, record.Digest(first.Normalize()), record.Digest(second.Normalize()))
	assert.NotEqual(t, record.Digest(first.Normalize()), record.Digest(second))
}

func TestWithNewOwnerClearsSaleState(t *testing.T) {
	title := record.Title{
		ID:               id.NewLinearID(),
		TitleNumber:      "ZQV888860",
		Owner:            record.CustomerDetails{Identity: 1, Name: "Alice Seller"},
		OwnerConveyancer: "ConveyItAll",
		OwnerLender:      "LenderCo",
		BuyerConveyancer: "PerfectProperties",
		Issuer:           "HMLR",
		Status:           record.TitleAssignBuyerConveyancer,
		OwnerSignature:   "jws",
	}

	buyer := record.CustomerDetails{Identity: 2, Name: "Bob Buyer"}
	out := title.WithNewOwner(buyer, "PerfectProperties", "OtherBank")

	require.Equal(t, record.TitleTransferred, out.Status)
	assert.Equal(t, buyer, out.Owner)
	assert.Equal(t, id.PartyID("PerfectProperties"), out.OwnerConveyancer)
	assert.Equal(t, id.PartyID("OtherBank"), out.OwnerLender)
	assert.True(t, out.BuyerConveyancer.IsZero())
	assert.Empty(t, out.OwnerSignature)

	// The consumed version is untouched.
	assert.Equal(t, record.TitleAssignBuyerConveyancer, title.Status)
}

func TestWithStatusClonesCollections(t *testing.T) {
	register := record.ChargesAndRestrictions{
		ID:           id.NewLinearID(),
		Charges:      []record.Charge{charge(1, "LenderCo", 1000)},
		Restrictions: []record.Restriction{{RestrictionID: "R1", Charge: &record.Charge{Lender: "LenderCo"}}},
		Status:       record.ChargesIssued,
	}

	out := register.WithStatus(record.ChargesRequestDischarge)
	out.Charges[0].Amount = id.GBP(999)
	out.Restrictions[0].Charge.Lender = "Mallory"

	assert.Equal(t, id.GBP(1000), register.Charges[0].Amount)
	assert.Equal(t, id.PartyID("LenderCo"), register.Restrictions[0].Charge.Lender)
}

func TestParticipantsCollectConsentingParties(t *testing.T) {
	register := record.ChargesAndRestrictions{
		ID:               id.NewLinearID(),
		OwnerConveyancer: "ConveyItAll",
		BuyerConveyancer: "PerfectProperties",
		Restrictions: []record.Restriction{
			{RestrictionID: "R1", ConsentingParty: "LenderCo"},
			{RestrictionID: "R2", ConsentingParty: "LenderCo"},
		},
	}

	parties := register.Participants()
	assert.ElementsMatch(t, []id.PartyID{"ConveyItAll", "PerfectProperties", "LenderCo"}, parties)
}

func TestSameParticipants(t *testing.T) {
	a := []id.PartyID{"HMLR", "ConveyItAll", "ConveyItAll"}
	b := []id.PartyID{"ConveyItAll", "HMLR"}

	assert.True(t, record.SameParticipants(a, b))
	assert.False(t, record.SameParticipants(a, []id.PartyID{"HMLR"}))
}
