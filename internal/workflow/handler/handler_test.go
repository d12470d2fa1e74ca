package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"conveyance/internal/ledger"
	"conveyance/internal/record"
	"conveyance/internal/rules"
	"conveyance/internal/signing"
	"conveyance/internal/titledata"
	"conveyance/internal/transport"
	"conveyance/internal/workflow"
	"conveyance/internal/workflow/handler"
	id "conveyance/pkg/domain"
)

const (
	issuer      = id.PartyID("HMLR")
	conveyancer = id.PartyID("ConveyItAll")
)

type HandlerSuite struct {
	suite.Suite
	source *titledata.MemorySource
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	keyring := signing.NewKeyring()
	store := ledger.NewMemory(rules.New(keyring), keyring)
	s.source = titledata.NewMemorySource()

	svc := workflow.New(issuer, store, store, s.source, transport.NewMemoryBus())
	for _, p := range []id.PartyID{issuer, conveyancer} {
		signer, err := signing.NewSigner(p)
		s.Require().NoError(err)
		keyring.Register(p, signer.Public())
		svc.RegisterSigner(signer)
	}

	s.router = handler.New(svc).Routes()
}

func (s *HandlerSuite) do(method, path string, party id.PartyID, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if party != "" {
		req.Header.Set("X-Party", party.String())
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) draftInstruction() workflow.Committed[record.ConveyancerInstruction] {
	rec := s.do(http.MethodPost, "/v1/instructions", issuer, map[string]any{
		"title_number": "ZQV888860",
		"case_ref":     "case-9",
		"conveyancer":  conveyancer.String(),
		"user":         record.CustomerDetails{Identity: 77, Name: "Carol Owner", Email: "carol@example.com"},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())

	var out workflow.Committed[record.ConveyancerInstruction]
	s.decode(rec, &out)
	return out
}

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestMissingPartyHeader() {
	rec := s.do(http.MethodPost, "/v1/instructions", "", map[string]any{})
	s.Equal(http.StatusUnauthorized, rec.Code)

	var body map[string]string
	s.decode(rec, &body)
	s.Equal("unauthorized", body["error"])
}

func (s *HandlerSuite) TestDraftInstruction() {
	out := s.draftInstruction()
	s.NotEqual(id.LinearID{}, out.Record.ID)
	s.Equal(conveyancer, out.Record.Conveyancer)

	rec := s.do(http.MethodGet, fmt.Sprintf("/v1/records/instructions/%s", out.Record.ID), issuer, nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestDraftInstructionRejectsBadTitleNumber() {
	rec := s.do(http.MethodPost, "/v1/instructions", issuer, map[string]any{
		"title_number": "not-a-title",
		"conveyancer":  conveyancer.String(),
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestWrongPartyIsUnauthorized() {
	out := s.draftInstruction()

	// Only the instructed conveyancer may accept.
	rec := s.do(http.MethodPost, fmt.Sprintf("/v1/instructions/%s/accept", out.Record.ID), issuer, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestIssuanceOverHTTP() {
	s.source.Put(titledata.Data{
		TitleNumber: "ZQV888860",
		Owner:       record.CustomerDetails{Identity: 77, Name: "Carol Owner", Email: "carol@example.com"},
		Guarantee:   record.GuaranteeFull,
		Charges:     []record.Charge{{Date: time.Date(2021, 3, 2, 0, 0, 0, 0, time.UTC), Lender: "LenderCo", Amount: id.GBP(90_000_00)}},
	})

	instruction := s.draftInstruction()

	rec := s.do(http.MethodPost, fmt.Sprintf("/v1/instructions/%s/accept", instruction.Record.ID), conveyancer, nil)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var request workflow.Committed[record.IssuanceRequest]
	s.decode(rec, &request)
	s.Equal(record.RequestPending, request.Record.Status)

	rec = s.do(http.MethodPost, fmt.Sprintf("/v1/issuance-requests/%s/issue", request.Record.ID), issuer, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var resolved workflow.Committed[record.IssuanceRequest]
	s.decode(rec, &resolved)
	s.Equal(record.RequestApproved, resolved.Record.Status)

	rec = s.do(http.MethodGet, "/v1/titles?title_number=ZQV888860", issuer, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var titles []json.RawMessage
	s.decode(rec, &titles)
	s.Len(titles, 1)

	rec = s.do(http.MethodGet, fmt.Sprintf("/v1/transactions/%s", resolved.TxID), issuer, nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var outputs []json.RawMessage
	s.decode(rec, &outputs)
	s.Len(outputs, 3)
}

func (s *HandlerSuite) TestUnknownRecordKind() {
	rec := s.do(http.MethodGet, fmt.Sprintf("/v1/records/widgets/%s", id.NewLinearID()), issuer, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestRecordNotFound() {
	rec := s.do(http.MethodGet, fmt.Sprintf("/v1/records/titles/%s", id.NewLinearID()), issuer, nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/v1/instructions", bytes.NewBufferString("{"))
	req.Header.Set("X-Party", issuer.String())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestBlankBuyerLenderRejected() {
	body := map[string]string{"buyer_lender": "   "}
	rec := s.do(http.MethodPost, fmt.Sprintf("/v1/titles/%s/assign-buyer-conveyancer", id.NewLinearID()), conveyancer, body)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestBadPathID() {
	rec := s.do(http.MethodPost, "/v1/instructions/not-a-uuid/accept", conveyancer, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}
