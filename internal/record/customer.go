package record

// Address is a registered property or correspondence address.
type Address struct {
	HouseNumber string `json:"house_number"`
	Street      string `json:"street"`
	TownCity    string `json:"town_city"`
	County      string `json:"county"`
	Country     string `json:"country"`
	Postcode    string `json:"postcode"`
}

// CustomerDetails identifies an end customer (owner, buyer or seller). The
// Identity number is issued by the registry's identity check; parties act on
// a customer's behalf but never stand in for their identity.
type CustomerDetails struct {
	Identity int64   `json:"identity"`
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Address  Address `json:"address"`
}

func (c CustomerDetails) Equal(o CustomerDetails) bool { return c == o }
