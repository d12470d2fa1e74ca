package rules_test

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	id "conveyance/pkg/domain"
)

const (
	issuer            = id.PartyID("HMLR")
	sellerConveyancer = id.PartyID("ConveyItAll")
	buyerConveyancer  = id.PartyID("PerfectProperties")
	sellerLender      = id.PartyID("LenderCo")
	buyerLender       = id.PartyID("OtherBank")
)

type RulesSuite struct {
	suite.Suite
	keyring   *signing.Keyring
	validator *rules.Validator
	signers   map[id.PartyID]*signing.Signer
}

func TestRulesSuite(t *testing.T) {
	suite.Run(t, new(RulesSuite))
}

func (s *RulesSuite) SetupTest() {
	s.keyring = signing.NewKeyring()
	s.validator = rules.New(s.keyring)
	s.signers = make(map[id.PartyID]*signing.Signer)
	for _, p := range []id.PartyID{issuer, sellerConveyancer, buyerConveyancer, sellerLender, buyerLender} {
		signer, err := signing.NewSigner(p)
		s.Require().NoError(err)
		s.signers[p] = signer
		s.keyring.Register(p, signer.Public())
	}
}

func ref(state record.State) record.StateAndRef {
	return record.StateAndRef{
		Ref:   record.VersionRef{TxID: id.NewTxID(), Index: 0},
		State: state,
	}
}

func (s *RulesSuite) pendingRequest() record.IssuanceRequest {
	return record.IssuanceRequest{
		ID:          id.NewLinearID(),
		TitleNumber: "ZQV888860",
		TitleIssuer: issuer,
		Conveyancer: sellerConveyancer,
		Seller:      record.CustomerDetails{Identity: 101, Name: "Alice Seller"},
		Status:      record.RequestPending,
	}
}

// issuedPair builds a matching title and charge register as ApproveIssuance
// would produce them.
func (s *RulesSuite) issuedPair(request record.IssuanceRequest) (record.Title, record.ChargesAndRestrictions) {
	charges := []record.Charge{{Lender: sellerLender, Amount: id.GBP(150_000_00)}}
	restrictions := []record.Restriction{{
		RestrictionID:   "R1",
		Text:            "no disposition without lender consent",
		ConsentingParty: sellerLender,
		Action:          record.ActionNoAction,
	}}

	register := record.ChargesAndRestrictions{
		ID:               id.NewLinearID(),
		TitleNumber:      request.TitleNumber,
		OwnerConveyancer: request.Conveyancer,
		Restrictions:     restrictions,
		Charges:          charges,
		Status:           record.ChargesIssued,
	}.Normalize()

	title := record.Title{
		ID:               id.NewLinearID(),
		TitleNumber:      request.TitleNumber,
		Owner:            request.Seller,
		OwnerConveyancer: request.Conveyancer,
		OwnerLender:      sellerLender,
		Issuer:           request.TitleIssuer,
		Guarantee:        record.GuaranteeFull,
		Status:           record.TitleIssued,
		Charges:          charges,
		Restrictions:     restrictions,
		ChargesRecordID:  register.ID,
	}.Normalize()

	return title, register
}

func (s *RulesSuite) TestRejectsEmptyProposal() {
	err := s.validator.Validate(rules.Proposal{})
	s.Require().Error(err)

	rejection, ok := rules.AsRejection(err)
	s.Require().True(ok)
	s.Contains(rejection.Reasons[0], "no commands")
}

func (s *RulesSuite) TestFailsClosedOnUnknownCommand() {
	err := s.validator.Validate(rules.Proposal{
		Commands: []rules.Command{{Type: "MintUnicorn"}},
	})
	s.Require().Error(err)

	rejection, _ := rules.AsRejection(err)
	s.Contains(rejection.Error(), "unknown command")
}

func (s *RulesSuite) TestFailsClosedOnUncoveredKind() {
	request := s.pendingRequest()
	title, _ := s.issuedPair(request)

	// CreateAgreement is not entitled to touch titles; the smuggled title
	// must sink the whole proposal.
	err := s.validator.Validate(rules.Proposal{
		Commands: []rules.Command{{Type: rules.CmdCreateAgreement, Signers: []id.PartyID{sellerConveyancer}}},
		Consumed: []record.StateAndRef{ref(title)},
		Produced: []record.State{title.WithBuyerConveyancerAssigned()},
		Signers:  []id.PartyID{sellerConveyancer},
	})
	s.Require().Error(err)

	rejection, _ := rules.AsRejection(err)
	s.Contains(rejection.Error(), "not covered by any declared command")
}

func (s *RulesSuite) TestIssuerActingAsOwnConveyancerRejected() {
	s.Run("instruction naming the issuer as conveyancer", func() {
		instruction := record.ConveyancerInstruction{
			ID:          id.NewLinearID(),
			TitleNumber: "ZQV888860",
			CaseRef:     "case-1",
			TitleIssuer: issuer,
			Conveyancer: issuer,
			User:        record.CustomerDetails{Identity: 101, Name: "Alice Seller"},
		}
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdCreateInstruction, Signers: []id.PartyID{issuer}}},
			Produced: []record.State{instruction},
			Signers:  []id.PartyID{issuer},
		})
		s.Require().Error(err)

		rejection, _ := rules.AsRejection(err)
		s.Contains(rejection.Error(), "conveyancer must differ from the issuer")
	})

	s.Run("issuance request where issuer and conveyancer coincide", func() {
		instruction := record.ConveyancerInstruction{
			ID:          id.NewLinearID(),
			TitleNumber: "ZQV888860",
			CaseRef:     "case-1",
			TitleIssuer: issuer,
			Conveyancer: issuer,
			User:        record.CustomerDetails{Identity: 101, Name: "Alice Seller"},
		}
		request := record.IssuanceRequest{
			ID:          id.NewLinearID(),
			TitleNumber: instruction.TitleNumber,
			TitleIssuer: issuer,
			Conveyancer: issuer,
			Seller:      instruction.User,
			Status:      record.RequestPending,
		}
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{
				{Type: rules.CmdAcceptInstruction, Signers: []id.PartyID{issuer}},
				{Type: rules.CmdRequestIssuance, Signers: []id.PartyID{issuer}},
			},
			Consumed: []record.StateAndRef{ref(instruction)},
			Produced: []record.State{request},
			Signers:  []id.PartyID{issuer},
		})
		s.Require().Error(err)

		rejection, _ := rules.AsRejection(err)
		s.Contains(rejection.Error(), "issuer must differ from the conveyancer")
	})
}

func (s *RulesSuite) TestApproveIssuance() {
	request := s.pendingRequest()
	title, register := s.issuedPair(request)

	proposal := rules.Proposal{
		Commands: []rules.Command{{Type: rules.CmdApproveIssuance, Signers: []id.PartyID{issuer}}},
		Consumed: []record.StateAndRef{ref(request)},
		Produced: []record.State{request.WithStatus(record.RequestApproved), title, register},
		Signers:  []id.PartyID{issuer},
	}

	s.Run("happy path", func() {
		s.NoError(s.validator.Validate(proposal))
	})

	s.Run("title number mismatch", func() {
		bad := title
		bad.TitleNumber = "ZQV999999"
		p := proposal
		p.Produced = []record.State{request.WithStatus(record.RequestApproved), bad, register}
		err := s.validator.Validate(p)
		s.Require().Error(err)
		s.Contains(err.Error(), "title number must match")
	})

	s.Run("missing charge register link", func() {
		bad := title
		bad.ChargesRecordID = id.NewLinearID()
		p := proposal
		p.Produced = []record.State{request.WithStatus(record.RequestApproved), bad, register}
		s.Error(s.validator.Validate(p))
	})

	s.Run("pre-set consent rejected", func() {
		bad := register
		bad.DischargeConsented = true
		p := proposal
		p.Produced = []record.State{request.WithStatus(record.RequestApproved), title, bad}
		s.Error(s.validator.Validate(p))
	})

	s.Run("aggregates every failure", func() {
		badTitle := title
		badTitle.TitleNumber = "ZQV999999"
		badTitle.Status = record.TitleTransferred
		p := proposal
		p.Produced = []record.State{request.WithStatus(record.RequestApproved), badTitle, register}
		err := s.validator.Validate(p)
		s.Require().Error(err)
		rejection, _ := rules.AsRejection(err)
		s.GreaterOrEqual(len(rejection.Reasons), 2)
	})
}

func (s *RulesSuite) TestTerminalStatusMovesAreImmutable() {
	request := s.pendingRequest()

	s.Run("status-only change passes", func() {
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRejectAlreadyIssued, Signers: []id.PartyID{issuer}}},
			Consumed: []record.StateAndRef{ref(request)},
			Produced: []record.State{request.WithStatus(record.RequestAlreadyIssued)},
			Signers:  []id.PartyID{issuer},
		}))
	})

	s.Run("smuggled field change rejected", func() {
		out := request.WithStatus(record.RequestAlreadyIssued)
		out.Seller.Name = "Mallory"
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRejectAlreadyIssued, Signers: []id.PartyID{issuer}}},
			Consumed: []record.StateAndRef{ref(request)},
			Produced: []record.State{out},
			Signers:  []id.PartyID{issuer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "outside the permitted change set")
	})
}

func (s *RulesSuite) TestRetryAfterFailure() {
	failed := s.pendingRequest().WithStatus(record.RequestFailed)

	s.Run("conveyancer alone retries", func() {
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRetryAfterFailure, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{ref(failed)},
			Produced: []record.State{failed.WithStatus(record.RequestPending)},
			Signers:  []id.PartyID{sellerConveyancer},
		}))
	})

	s.Run("issuer may not co-sign a retry", func() {
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRetryAfterFailure, Signers: []id.PartyID{sellerConveyancer, issuer}}},
			Consumed: []record.StateAndRef{ref(failed)},
			Produced: []record.State{failed.WithStatus(record.RequestPending)},
			Signers:  []id.PartyID{sellerConveyancer, issuer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "only declared signer")
	})

	s.Run("approved request cannot be retried", func() {
		approved := s.pendingRequest().WithStatus(record.RequestApproved)
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRetryAfterFailure, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{ref(approved)},
			Produced: []record.State{approved.WithStatus(record.RequestPending)},
			Signers:  []id.PartyID{sellerConveyancer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "must be Failed")
	})
}

func (s *RulesSuite) TestRequestTransfer() {
	request := s.pendingRequest()
	title, _ := s.issuedPair(request)
	in := ref(title)

	sign := func(signer id.PartyID) string {
		sig, err := s.signers[signer].Sign(record.Digest(title))
		s.Require().NoError(err)
		return sig
	}

	s.Run("happy path", func() {
		out := title.WithTransferRequested(buyerConveyancer, sign(sellerConveyancer))
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRequestTransfer, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{in},
			Produced: []record.State{out},
			Signers:  []id.PartyID{sellerConveyancer},
		}))
	})

	s.Run("owner signature from the wrong party", func() {
		out := title.WithTransferRequested(buyerConveyancer, sign(buyerConveyancer))
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRequestTransfer, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{in},
			Produced: []record.State{out},
			Signers:  []id.PartyID{sellerConveyancer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "owner signature rejected")
	})

	s.Run("buyer conveyancer must differ from owner's", func() {
		out := title.WithTransferRequested(sellerConveyancer, sign(sellerConveyancer))
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdRequestTransfer, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{in},
			Produced: []record.State{out},
			Signers:  []id.PartyID{sellerConveyancer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "must differ")
	})
}

func (s *RulesSuite) TestAgreementSigningChain() {
	agreement := record.Agreement{
		ID:                 id.NewLinearID(),
		TitleID:            id.NewLinearID(),
		Buyer:              record.CustomerDetails{Identity: 202, Name: "Bob Buyer"},
		Seller:             record.CustomerDetails{Identity: 101, Name: "Alice Seller"},
		BuyerConveyancer:   buyerConveyancer,
		SellerConveyancer:  sellerConveyancer,
		PurchasePrice:      id.GBP(250_000_00),
		Deposit:            id.GBP(25_000_00),
		Balance:            id.GBP(225_000_00),
		Status:             record.AgreementApproved,
		MortgageTermsAdded: true,
	}

	sellerSig, err := s.signers[sellerConveyancer].Sign(record.Digest(agreement))
	s.Require().NoError(err)

	s.Run("seller signs over the approved version", func() {
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdSellerSign, Signers: []id.PartyID{sellerConveyancer}}},
			Consumed: []record.StateAndRef{ref(agreement)},
			Produced: []record.State{agreement.WithSellerSignature(sellerSig)},
			Signers:  []id.PartyID{sellerConveyancer},
		}))
	})

	signed := agreement.WithSellerSignature(sellerSig)
	buyerSig, err := s.signers[buyerConveyancer].Sign(record.Digest(signed))
	s.Require().NoError(err)

	s.Run("buyer countersigns over the signed version", func() {
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdBuyerSign, Signers: []id.PartyID{buyerConveyancer}}},
			Consumed: []record.StateAndRef{ref(signed)},
			Produced: []record.State{signed.WithBuyerSignature(buyerSig)},
			Signers:  []id.PartyID{buyerConveyancer},
		}))
	})

	s.Run("buyer cannot drop the seller's signature", func() {
		out := signed.WithBuyerSignature(buyerSig)
		out.SellerSignature = ""
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdBuyerSign, Signers: []id.PartyID{buyerConveyancer}}},
			Consumed: []record.StateAndRef{ref(signed)},
			Produced: []record.State{out},
			Signers:  []id.PartyID{buyerConveyancer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "seller signature must be preserved")
	})
}

func (s *RulesSuite) TestDeclaredSignerMustBeInBundle() {
	request := s.pendingRequest()

	err := s.validator.Validate(rules.Proposal{
		Commands: []rules.Command{{Type: rules.CmdRejectAlreadyIssued, Signers: []id.PartyID{issuer}}},
		Consumed: []record.StateAndRef{ref(request)},
		Produced: []record.State{request.WithStatus(record.RequestAlreadyIssued)},
		Signers:  nil,
	})
	s.Require().Error(err)
	s.Contains(err.Error(), "not in the bundle signer set")
}

func (s *RulesSuite) TestConsentDischargeNeedsEveryConsentingParty() {
	request := s.pendingRequest()
	_, register := s.issuedPair(request)

	pending := register.WithRestrictions(record.ChargesRequestDischarge, dischargeRequested(register))

	consented := make([]record.Restriction, len(pending.Restrictions))
	for i, r := range pending.Restrictions {
		r.ConsentGiven = true
		consented[i] = r
	}
	out := pending.WithRestrictions(record.ChargesDischargeConsented, consented)
	out = out.WithConsentFlags(record.ChargesDischargeConsented, true, false)

	s.Run("lender consents", func() {
		s.NoError(s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdConsentDischarge, Signers: []id.PartyID{sellerLender}}},
			Consumed: []record.StateAndRef{ref(pending)},
			Produced: []record.State{out},
			Signers:  []id.PartyID{sellerLender},
		}))
	})

	s.Run("missing consenting party", func() {
		err := s.validator.Validate(rules.Proposal{
			Commands: []rules.Command{{Type: rules.CmdConsentDischarge, Signers: nil}},
			Consumed: []record.StateAndRef{ref(pending)},
			Produced: []record.State{out},
			Signers:  []id.PartyID{sellerConveyancer},
		})
		s.Require().Error(err)
		s.Contains(err.Error(), "consenting party")
	})
}

func dischargeRequested(register record.ChargesAndRestrictions) []record.Restriction {
	out := make([]record.Restriction, len(register.Restrictions))
	for i, r := range register.Restrictions {
		r.Action = record.ActionDischarge
		r.ConsentGiven = false
		out[i] = r
	}
	return out
}
