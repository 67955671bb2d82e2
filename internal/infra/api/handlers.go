package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"license-billing/internal/domain"
	"license-billing/internal/domain/model"
	"license-billing/internal/infra/adapters/payment"
	"license-billing/internal/infra/logging"
	"license-billing/internal/infra/metrics"
	"license-billing/internal/usecase"
)

const maxBody = 1 << 20

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError("invalid request body")
	}
	return nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, _ *http.Request) {
	plans := model.ListPlans()
	packs := model.ListCreditPacks()
	out := struct {
		Plans       []planDTO       `json:"plans"`
		CreditPacks []creditPackDTO `json:"credit_packs"`
	}{
		Plans:       make([]planDTO, 0, len(plans)),
		CreditPacks: make([]creditPackDTO, 0, len(packs)),
	}
	for _, p := range plans {
		out.Plans = append(out.Plans, planDTO{
			ID: p.ID, Name: p.Name, Price: p.Price.StringFixed(2), Amount: model.MinorUnits(p.Price),
			Currency: p.Currency, Interval: p.Interval, Credits: p.Credits,
		})
	}
	for _, p := range packs {
		out.CreditPacks = append(out.CreditPacks, creditPackDTO{
			Credits: p.Credits, Price: p.Price.StringFixed(2), Amount: model.MinorUnits(p.Price), Currency: p.Currency,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanID string `json:"planId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	sub, err := s.orders.CreateSubscriptionOrder(r.Context(), logging.UserID(r.Context()), strings.TrimSpace(req.PlanID))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, subscriptionDTO(sub))
}

func (s *Server) handleCreateCreditPurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Credits int `json:"credits"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	txn, err := s.orders.CreateCreditPurchase(r.Context(), logging.UserID(r.Context()), req.Credits)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, transactionDTO(txn))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.orders.GetOrder(r.Context(), logging.UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, orderViewDTO{OrderID: o.ID, Kind: o.Kind, Status: o.State, PlanID: o.PlanID, Credits: o.Credits})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req usecase.SessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	uid := logging.UserID(r.Context())
	if req.UserID != "" && req.UserID != uid {
		writeJSON(w, http.StatusForbidden, errorBody{Error: "userId does not match the authenticated user"})
		return
	}
	res, err := s.sessions.CreateSession(r.Context(), req)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	log := logging.With(r.Context(), s.log)
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		metrics.IncWebhook("invalid")
		writeError(w, r, s.log, domain.NewValidationError("unreadable body"))
		return
	}

	if s.opts.Webhook.VerifySignature {
		err := payment.VerifySignature(s.opts.Webhook.Secret,
			r.Header.Get(payment.TimestampHeader), body, r.Header.Get(payment.SignatureHeader), s.now())
		if err != nil {
			metrics.IncWebhook("unauthorized")
			log.Warn().Msg("webhook signature rejected")
			writeError(w, r, s.log, err)
			return
		}
	}

	ev, err := payment.ParseWebhook(body)
	if err != nil {
		metrics.IncWebhook("invalid")
		writeError(w, r, s.log, err)
		return
	}

	ctx := logging.WithOrderID(r.Context(), ev.OrderID)
	res, err := s.webhooks.ApplyStatus(ctx, usecase.StatusUpdate{OrderID: ev.OrderID, Status: ev.OrderStatus, PaymentID: ev.PaymentID})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			metrics.IncWebhook("not_found")
		case errors.Is(err, domain.ErrLockBusy):
			metrics.IncWebhook("busy")
		default:
			metrics.IncWebhook("error")
		}
		writeError(w, r.WithContext(ctx), s.log, err)
		return
	}

	result := "noop"
	if res != nil && res.Applied {
		result = string(res.Outcome)
	}
	metrics.IncWebhook(result)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) confirmFromQuery(r *http.Request) (usecase.ConfirmResult, error) {
	var orderID string
	if err := runtime.BindQueryParameter("form", true, false, "order_id", r.URL.Query(), &orderID); err != nil {
		return usecase.ConfirmResult{}, domain.NewValidationError("invalid order_id", "order_id")
	}
	return s.confirm.Confirm(r.Context(), logging.UserID(r.Context()), strings.TrimSpace(orderID)), nil
}

// handleConfirm blocks while the order is pending, up to the poller timeout. Every
// outcome is a 200; the outcome field tells the client what to render.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	res, err := s.confirmFromQuery(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toConfirmDTO(res))
}

func (s *Server) handleLatestLicense(w http.ResponseWriter, r *http.Request) {
	l, err := s.orders.LatestLicense(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toLicenseDTO(l))
}

func (s *Server) handleListLicenses(w http.ResponseWriter, r *http.Request) {
	ls, err := s.orders.ListLicenses(r.Context(), logging.UserID(r.Context()))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]*licenseDTO, 0, len(ls))
	for _, l := range ls {
		out = append(out, toLicenseDTO(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"licenses": out})
}

func (s *Server) handleRedeemPromo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	l, err := s.promos.Redeem(r.Context(), logging.UserID(r.Context()), req.Code)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLicenseDTO(l))
}
