package record

import (
	id "conveyance/pkg/domain"
)

// ConveyancerInstruction records the registry instructing a conveyancer to
// act for a title owner. It is created once and consumed exactly once, when
// the conveyancer requests issuance.
type ConveyancerInstruction struct {
	ID          id.LinearID     `json:"id"`
	TitleNumber id.TitleNumber  `json:"title_number"`
	CaseRef     string          `json:"case_ref"`
	TitleIssuer id.PartyID      `json:"title_issuer"`
	Conveyancer id.PartyID      `json:"conveyancer"`
	User        CustomerDetails `json:"user"`
}

func (s ConveyancerInstruction) LinearID() id.LinearID { return s.ID }
func (s ConveyancerInstruction) Kind() Kind            { return KindInstruction }

func (s ConveyancerInstruction) Participants() []id.PartyID {
	return []id.PartyID{s.TitleIssuer, s.Conveyancer}
}
