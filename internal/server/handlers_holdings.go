package server

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fintrack/internal/models"
)

type holdingRequest struct {
	Symbol       string          `json:"symbol"`
	Name         string          `json:"name"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgCost      decimal.Decimal `json:"avg_cost"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	Currency     string          `json:"currency"`
}

func (s *Server) holdingFromRequest(req holdingRequest) models.Holding {
	return models.Holding{
		Symbol:       strings.TrimSpace(req.Symbol),
		Name:         strings.TrimSpace(req.Name),
		Quantity:     req.Quantity,
		AvgCost:      req.AvgCost,
		CurrentPrice: req.CurrentPrice,
		Currency:     s.currencyOrDefault(req.Currency),
	}
}

// handleHoldings handles GET|POST /api/holdings.
func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		holdings, err := sess.Ledger.Holdings()
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, holdings)
		return
	}

	var req holdingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	id, err := sess.Mutations.AddHolding(r.Context(), s.holdingFromRequest(req))
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// handleHoldingItem handles PUT|DELETE /api/holdings/{id}.
func (s *Server) handleHoldingItem(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPut, http.MethodDelete) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	id := PathParam(r, "/api/holdings/", "")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "holding id is required in path")
		return
	}

	if r.Method == http.MethodDelete {
		if err := sess.Mutations.DeleteHolding(r.Context(), id); err != nil {
			WriteServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req holdingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	holding := s.holdingFromRequest(req)
	holding.ID = id
	if err := sess.Mutations.UpsertHolding(r.Context(), holding); err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, createdResponse{ID: id})
}

// handleHoldingsSync handles POST /api/holdings/sync (run a price sync) and
// GET /api/holdings/sync (busy flag).
func (s *Server) handleHoldingsSync(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		WriteJSON(w, http.StatusOK, map[string]bool{"busy": sess.Prices.Busy()})
		return
	}

	result, err := sess.Prices.TrySync(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
