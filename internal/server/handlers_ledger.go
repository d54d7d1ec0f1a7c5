package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/fintrack/internal/models"
)

type createdResponse struct {
	ID string `json:"id"`
}

// --- Accounts ---

type accountRequest struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
}

// handleAccounts handles GET|POST /api/accounts.
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		accounts, err := sess.Ledger.Accounts()
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, accounts)
		return
	}

	var req accountRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	accountType, err := models.ParseAccountType(req.Type)
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	id, err := sess.Mutations.AddAccount(r.Context(), models.Account{
		Name:     req.Name,
		Type:     accountType,
		Balance:  req.Balance,
		Currency: s.currencyOrDefault(req.Currency),
	})
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// handleAccountItem handles DELETE /api/accounts/{id}.
func (s *Server) handleAccountItem(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	id := PathParam(r, "/api/accounts/", "")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "account id is required in path")
		return
	}
	if err := sess.Mutations.DeleteAccount(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Transactions ---

type transactionRequest struct {
	AccountID string          `json:"account_id"`
	Date      string          `json:"date"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Note      string          `json:"note"`
}

// handleTransactions handles GET|POST /api/transactions.
// GET accepts ?account_id= and ?limit= filters.
func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet {
		txs, err := sess.Ledger.Transactions()
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, filterTransactions(txs, r))
		return
	}

	var req transactionRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	txType, err := models.ParseTransactionType(req.Type)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	date := strings.TrimSpace(req.Date)
	if date == "" {
		date = time.Now().Format(models.DateLayout)
	}

	id, err := sess.Mutations.AddTransaction(r.Context(), models.Transaction{
		AccountID: strings.TrimSpace(req.AccountID),
		Date:      date,
		Amount:    req.Amount,
		Type:      txType,
		Category:  strings.TrimSpace(req.Category),
		Note:      req.Note,
	})
	if err != nil {
		if id != "" {
			// the record exists but its balance write failed
			status, code := errorStatus(err)
			WriteJSON(w, status, map[string]string{"id": id, "error": err.Error(), "code": code})
			return
		}
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, createdResponse{ID: id})
}

func filterTransactions(txs []models.Transaction, r *http.Request) []models.Transaction {
	q := r.URL.Query()
	if accountID := q.Get("account_id"); accountID != "" {
		filtered := txs[:0:0]
		for _, tx := range txs {
			if tx.AccountID == accountID {
				filtered = append(filtered, tx)
			}
		}
		txs = filtered
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs
}

// handleTransactionItem handles DELETE /api/transactions/{id}.
func (s *Server) handleTransactionItem(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodDelete) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	id := PathParam(r, "/api/transactions/", "")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "transaction id is required in path")
		return
	}
	if err := sess.Mutations.DeleteTransaction(r.Context(), id); err != nil {
		WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCategories handles GET /api/categories, optionally ?type=Income.
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if raw := r.URL.Query().Get("type"); raw != "" {
		t, err := models.ParseTransactionType(raw)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"type":       t,
			"categories": models.Categories(t),
		})
		return
	}
	WriteJSON(w, http.StatusOK, models.AllCategories())
}

func (s *Server) currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return s.app.Config.Display.BaseCurrency
	}
	return currency
}
