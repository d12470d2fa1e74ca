// Package handler exposes the workflow procedures over HTTP. Handlers stay
// thin: parse, authenticate the calling party, invoke the service, map the
// coded error.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"conveyance/internal/record"
	"conveyance/internal/workflow"
	id "conveyance/pkg/domain"
	dErrors "conveyance/pkg/domain-errors"
	"conveyance/pkg/platform/httputil"
	"conveyance/pkg/requestcontext"
)

type Handler struct {
	svc    *workflow.Service
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

func New(svc *workflow.Service, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes mounts every workflow procedure.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestScope)

	r.Get("/healthz", h.health)

	r.Route("/v1", func(r chi.Router) {
		r.Use(partyAuth)

		r.Post("/instructions", h.draftInstruction)
		r.Post("/instructions/{recordID}/accept", h.requestIssuance)

		r.Post("/issuance-requests/{recordID}/issue", h.issueTitle)
		r.Post("/issuance-requests/{recordID}/retry", h.retryIssuance)

		r.Post("/charge-registers/{recordID}/request-discharge", h.requestDischarge)
		r.Post("/charge-registers/{recordID}/consent-discharge", h.consentDischarge)
		r.Post("/charge-registers/{recordID}/request-new-charge", h.requestNewCharge)
		r.Post("/charge-registers/{recordID}/consent-new-charge", h.consentNewCharge)

		r.Post("/titles/{recordID}/request-transfer", h.requestTransfer)
		r.Post("/titles/{recordID}/assign-buyer-conveyancer", h.assignBuyerConveyancer)

		r.Post("/agreements", h.draftAgreement)
		r.Post("/agreements/{recordID}/approve", h.approveAgreement)
		r.Post("/agreements/{recordID}/sign", h.signAgreement)
		r.Post("/agreements/{recordID}/request-payment", h.requestPayment)
		r.Post("/agreements/{recordID}/transfer", h.transferTitle)

		r.Post("/payments/{recordID}/confirm", h.confirmPayment)

		r.Get("/records/{kind}/{recordID}", h.getRecord)
		r.Get("/titles", h.titlesByNumber)
		r.Get("/transactions/{txID}", h.transactionOutputs)
	})
	return r
}

// requestScope attaches a request id to the context for log correlation.
func requestScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// partyAuth establishes the calling party from the X-Party header. A gateway
// in front of the node authenticates the party; here the header is trusted.
func partyAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		party, err := id.ParsePartyID(r.Header.Get("X-Party"))
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "X-Party header is required"))
			return
		}
		ctx := requestcontext.WithParty(r.Context(), party)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func pathLinearID(w http.ResponseWriter, r *http.Request) (id.LinearID, bool) {
	linearID, err := id.ParseLinearID(chi.URLParam(r, "recordID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.LinearID{}, false
	}
	return linearID, true
}

type draftInstructionRequest struct {
	TitleNumber string                 `json:"title_number"`
	CaseRef     string                 `json:"case_ref"`
	Conveyancer string                 `json:"conveyancer"`
	User        record.CustomerDetails `json:"user"`
}

func (h *Handler) draftInstruction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[draftInstructionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	titleNumber, err := id.ParseTitleNumber(req.TitleNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	conveyancer, err := id.ParsePartyID(req.Conveyancer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.DraftInstruction(ctx, workflow.DraftInstructionParams{
		TitleNumber: titleNumber,
		CaseRef:     req.CaseRef,
		Conveyancer: conveyancer,
		User:        req.User,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) requestIssuance(w http.ResponseWriter, r *http.Request) {
	instructionID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.RequestIssuance(r.Context(), instructionID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) issueTitle(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.IssueTitle(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) retryIssuance(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.RetryIssuance(r.Context(), requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) requestDischarge(w http.ResponseWriter, r *http.Request) {
	registerID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.RequestDischarge(r.Context(), registerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) consentDischarge(w http.ResponseWriter, r *http.Request) {
	registerID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ConsentDischarge(r.Context(), registerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type newChargeRequest struct {
	Date   time.Time `json:"date"`
	Lender string    `json:"lender"`
	Amount id.Money  `json:"amount"`
}

func (h *Handler) requestNewCharge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	registerID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[newChargeRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	lender, err := id.ParsePartyID(req.Lender)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.RequestNewCharge(ctx, registerID, record.Charge{
		Date:   req.Date,
		Lender: lender,
		Amount: req.Amount,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) consentNewCharge(w http.ResponseWriter, r *http.Request) {
	registerID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ConsentNewCharge(r.Context(), registerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type requestTransferRequest struct {
	BuyerConveyancer string `json:"buyer_conveyancer"`
}

func (h *Handler) requestTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	titleID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[requestTransferRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	buyerConveyancer, err := id.ParsePartyID(req.BuyerConveyancer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.RequestTransfer(ctx, titleID, buyerConveyancer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type assignBuyerConveyancerRequest struct {
	BuyerLender string `json:"buyer_lender,omitempty"`
}

func (h *Handler) assignBuyerConveyancer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	titleID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[assignBuyerConveyancerRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}

	var buyerLender id.PartyID
	if req.BuyerLender != "" {
		lender, err := id.ParsePartyID(req.BuyerLender)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		buyerLender = lender
	}

	out, err := h.svc.AssignBuyerConveyancer(ctx, titleID, buyerLender)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type draftAgreementRequest struct {
	TitleID          string                 `json:"title_id"`
	Buyer            record.CustomerDetails `json:"buyer"`
	Seller           record.CustomerDetails `json:"seller"`
	BuyerConveyancer string                 `json:"buyer_conveyancer"`

	CompletionDate time.Time `json:"completion_date"`

	ContractRate        float64               `json:"contract_rate"`
	PurchasePrice       id.Money              `json:"purchase_price"`
	Deposit             id.Money              `json:"deposit"`
	ContentsPrice       id.Money              `json:"contents_price"`
	Balance             id.Money              `json:"balance"`
	Guarantee           record.TitleGuarantee `json:"guarantee"`
	SpecificPerformance bool                  `json:"specific_performance"`
}

func (h *Handler) draftAgreement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[draftAgreementRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	titleID, err := id.ParseLinearID(req.TitleID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	buyerConveyancer, err := id.ParsePartyID(req.BuyerConveyancer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.DraftAgreement(ctx, workflow.DraftAgreementParams{
		TitleID:             titleID,
		Buyer:               req.Buyer,
		Seller:              req.Seller,
		BuyerConveyancer:    buyerConveyancer,
		CompletionDate:      req.CompletionDate,
		ContractRate:        req.ContractRate,
		PurchasePrice:       req.PurchasePrice,
		Deposit:             req.Deposit,
		ContentsPrice:       req.ContentsPrice,
		Balance:             req.Balance,
		Guarantee:           req.Guarantee,
		SpecificPerformance: req.SpecificPerformance,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) approveAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ApproveAgreement(r.Context(), agreementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) signAgreement(w http.ResponseWriter, r *http.Request) {
	agreementID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.SignAgreement(r.Context(), agreementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

type requestPaymentRequest struct {
	SettlingParty string `json:"settling_party"`
}

func (h *Handler) requestPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agreementID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[requestPaymentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	settlingParty, err := id.ParsePartyID(req.SettlingParty)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.RequestPayment(ctx, agreementID, settlingParty)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, out)
}

func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.ConfirmPayment(r.Context(), paymentID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) transferTitle(w http.ResponseWriter, r *http.Request) {
	agreementID, ok := pathLinearID(w, r)
	if !ok {
		return
	}
	out, err := h.svc.TransferTitle(r.Context(), agreementID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

var kindsByPath = map[string]record.Kind{
	"instructions":      record.KindInstruction,
	"issuance-requests": record.KindRequest,
	"titles":            record.KindTitle,
	"charge-registers":  record.KindCharges,
	"agreements":        record.KindAgreement,
	"payments":          record.KindPayment,
}

type recordResponse struct {
	Ref    record.VersionRef `json:"ref"`
	Record record.State      `json:"record"`
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	kind, ok := kindsByPath[chi.URLParam(r, "kind")]
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "unknown record kind"))
		return
	}
	linearID, ok := pathLinearID(w, r)
	if !ok {
		return
	}

	out, err := h.svc.GetRecord(r.Context(), kind, linearID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, recordResponse{Ref: out.Ref, Record: out.State})
}

func (h *Handler) titlesByNumber(w http.ResponseWriter, r *http.Request) {
	titleNumber, err := id.ParseTitleNumber(r.URL.Query().Get("title_number"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.TitlesByNumber(r.Context(), titleNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := make([]recordResponse, 0, len(out))
	for _, ref := range out {
		resp = append(resp, recordResponse{Ref: ref.Ref, Record: ref.State})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) transactionOutputs(w http.ResponseWriter, r *http.Request) {
	txID, err := id.ParseTxID(chi.URLParam(r, "txID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.svc.TransactionOutputs(r.Context(), txID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resp := make([]recordResponse, 0, len(out))
	for _, ref := range out {
		resp = append(resp, recordResponse{Ref: ref.Ref, Record: ref.State})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
