package ledger

import (
	"encoding/json"
	"fmt"

	"conveyance/internal/record"
)

// encodeState serializes a state for durable storage.
func encodeState(s record.State) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", s.Kind(), err)
	}
	return b, nil
}

// decodeState revives a stored state by its kind tag.
func decodeState(kind record.Kind, data []byte) (record.State, error) {
	var (
		s   record.State
		err error
	)
	switch kind {
	case record.KindInstruction:
		var v record.ConveyancerInstruction
		err = json.Unmarshal(data, &v)
		s = v
	case record.KindRequest:
		var v record.IssuanceRequest
		err = json.Unmarshal(data, &v)
		s = v
	case record.KindTitle:
		var v record.Title
		err = json.Unmarshal(data, &v)
		s = v
	case record.KindCharges:
		var v record.ChargesAndRestrictions
		err = json.Unmarshal(data, &v)
		s = v
	case record.KindAgreement:
		var v record.Agreement
		err = json.Unmarshal(data, &v)
		s = v
	case record.KindPayment:
		var v record.PaymentConfirmation
		err = json.Unmarshal(data, &v)
		s = v
	default:
		return nil, fmt.Errorf("decode state: unknown kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s state: %w", kind, err)
	}
	return s, nil
}

// titleNumberOf extracts the title number for kinds that carry one; store
// queries by attribute use it as the indexed column.
func titleNumberOf(s record.State) string {
	switch v := s.(type) {
	case record.ConveyancerInstruction:
		return string(v.TitleNumber)
	case record.IssuanceRequest:
		return string(v.TitleNumber)
	case record.Title:
		return string(v.TitleNumber)
	case record.ChargesAndRestrictions:
		return string(v.TitleNumber)
	default:
		return ""
	}
}
