package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/fintrack/internal/app"
	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/services/session"
)

func testApp(t *testing.T) *app.App {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Backend = common.BackendBadger
	cfg.Storage.Path = filepath.Join(t.TempDir(), "ledger")
	cfg.Auth.JWTSecret = "server-test-secret"
	cfg.Auth.SeedDemoData = true
	cfg.Clients.Gemini.APIKey = ""

	a, err := app.NewAppWithConfig(cfg, common.NewSilentLogger())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func testServer(t *testing.T, a *app.App) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(NewServer(a).Handler())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON sends body as JSON with an optional bearer token.
func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func login(t *testing.T, ts *httptest.Server, email string) string {
	t.Helper()
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", loginRequest{Email: email, Password: "secret-pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[loginResponse](t, resp)
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestHealthAndVersion(t *testing.T) {
	ts := testServer(t, testApp(t))

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, resp)["status"])

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/version", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, decodeBody[map[string]string](t, resp)["version"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCorrelationIDHeader(t *testing.T) {
	ts := testServer(t, testApp(t))

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "req-123", resp.Header.Get("X-Correlation-ID"))
}

func TestLoginAndMe(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "alice@example.com")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	type meResponse struct {
		User  models.User `json:"user"`
		Ready bool        `json:"ready"`
	}
	body := decodeBody[meResponse](t, resp)
	assert.Equal(t, "alice@example.com", body.User.Email)
	assert.Equal(t, "alice", body.User.DisplayName)
	assert.True(t, body.Ready)
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := testServer(t, testApp(t))
	login(t, ts, "bob@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/login", "", loginRequest{Email: "bob@example.com", Password: "not-the-pw"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeBody[ErrorResponse](t, resp).Code)
}

func TestLedgerEndpointsRequireToken(t *testing.T) {
	ts := testServer(t, testApp(t))

	for _, path := range []string{"/api/me", "/api/accounts", "/api/transactions", "/api/holdings", "/api/dashboard", "/api/reports"} {
		t.Run(path, func(t *testing.T) {
			resp := doJSON(t, http.MethodGet, ts.URL+path, "", nil)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			assert.Equal(t, "Bearer", resp.Header.Get("WWW-Authenticate"))
		})
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/accounts", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeBody[ErrorResponse](t, resp).Code)
}

func TestLogout_ClosesSession(t *testing.T) {
	a := testApp(t)
	ts := testServer(t, a)
	token := login(t, ts, "carol@example.com")
	require.Len(t, a.Sessions.Sessions(), 1)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, a.Sessions.Sessions())

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/accounts", token, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeBody[ErrorResponse](t, resp).Code)
	assert.Empty(t, a.Sessions.Sessions(), "a revoked token must not reopen a session")

	fresh := login(t, ts, "carol@example.com")
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/accounts", fresh, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAccountsAndTransactions(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "dave@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts", token, accountRequest{
		Name: "Wallet", Type: "cash", Balance: decimal.NewFromInt(1000),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	accountID := decodeBody[createdResponse](t, resp).ID
	require.NotEmpty(t, accountID)

	balanceOf := func() decimal.Decimal {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/accounts", token, nil)
		for _, acc := range decodeBody[[]models.Account](t, resp) {
			if acc.ID == accountID {
				assert.Equal(t, models.AccountTypeCash, acc.Type)
				assert.Equal(t, "TWD", acc.Currency)
				return acc.Balance
			}
		}
		return decimal.NewFromInt(-1)
	}
	// the ledger only knows the account once its snapshot arrives
	require.Eventually(t, func() bool { return balanceOf().Equal(decimal.NewFromInt(1000)) }, 5*time.Second, 20*time.Millisecond)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/transactions", token, transactionRequest{
		AccountID: accountID, Date: "2024-03-01", Amount: decimal.NewFromInt(200), Type: "Expense", Category: "Food",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	txID := decodeBody[createdResponse](t, resp).ID
	require.Eventually(t, func() bool { return balanceOf().Equal(decimal.NewFromInt(800)) }, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/transactions?account_id="+accountID, token, nil)
		txs := decodeBody[[]models.Transaction](t, resp)
		return len(txs) == 1 && txs[0].ID == txID
	}, 5*time.Second, 20*time.Millisecond)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/transactions/"+txID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool { return balanceOf().Equal(decimal.NewFromInt(1000)) }, 5*time.Second, 20*time.Millisecond)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/accounts/"+accountID, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTransactions_Limit(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "erin@example.com")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/transactions?limit=2", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]models.Transaction](t, resp), 2)
}

func TestAddTransaction_ErrorMapping(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "frank@example.com")

	tests := []struct {
		name   string
		req    transactionRequest
		status int
		code   string
	}{
		{"unknown account", transactionRequest{AccountID: "nope", Amount: decimal.NewFromInt(10), Type: "Income", Category: "Salary"}, http.StatusBadRequest, "unknown_account"},
		{"negative amount", transactionRequest{AccountID: "nope", Amount: decimal.NewFromInt(-5), Type: "Income", Category: "Salary"}, http.StatusBadRequest, "validation_error"},
		{"bad date", transactionRequest{AccountID: "nope", Date: "01/03/2024", Amount: decimal.NewFromInt(10), Type: "Income", Category: "Salary"}, http.StatusBadRequest, "validation_error"},
		{"bad type", transactionRequest{AccountID: "nope", Amount: decimal.NewFromInt(10), Type: "Gift", Category: "Salary"}, http.StatusBadRequest, "validation_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodPost, ts.URL+"/api/transactions", token, tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, resp).Code)
		})
	}
}

func TestAddAccount_InvalidJSON(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "gina@example.com")

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/accounts", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCategories(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "hank@example.com")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/categories?type=expense", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[struct {
		Type       models.TransactionType `json:"type"`
		Categories []string               `json:"categories"`
	}](t, resp)
	assert.Equal(t, models.TransactionTypeExpense, body.Type)
	assert.Contains(t, body.Categories, "Food")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/categories?type=gift", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHoldings_CRUD(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "ivy@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/holdings", token, holdingRequest{
		Symbol: "AAPL", Name: "Apple", Quantity: decimal.NewFromInt(5), AvgCost: decimal.NewFromInt(150), Currency: "usd",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decodeBody[createdResponse](t, resp).ID

	find := func() (models.Holding, bool) {
		resp := doJSON(t, http.MethodGet, ts.URL+"/api/holdings", token, nil)
		for _, h := range decodeBody[[]models.Holding](t, resp) {
			if h.ID == id {
				return h, true
			}
		}
		return models.Holding{}, false
	}
	require.Eventually(t, func() bool { _, ok := find(); return ok }, 5*time.Second, 20*time.Millisecond)
	h, _ := find()
	assert.Equal(t, "USD", h.Currency)
	assert.True(t, h.CurrentPrice.Equal(decimal.NewFromInt(150)), "price defaults to cost")

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/holdings/"+id, token, holdingRequest{
		Symbol: "AAPL", Name: "Apple", Quantity: decimal.NewFromInt(7), AvgCost: decimal.NewFromInt(150), CurrentPrice: decimal.NewFromInt(180), Currency: "USD",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Eventually(t, func() bool {
		h, ok := find()
		return ok && h.Quantity.Equal(decimal.NewFromInt(7))
	}, 5*time.Second, 20*time.Millisecond)

	resp = doJSON(t, http.MethodDelete, ts.URL+"/api/holdings/"+id, token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Eventually(t, func() bool { _, ok := find(); return !ok }, 5*time.Second, 20*time.Millisecond)
}

func TestHoldingsSync_NoOracle(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "jack@example.com")

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/holdings/sync", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[models.PriceSyncResult](t, resp)
	assert.Equal(t, app.ErrOracleUnavailable.Error(), result.OracleError)
	assert.Equal(t, 0, result.Updated)
}

// blockingOracle holds every request until release is closed.
type blockingOracle struct {
	entered chan struct{}
	release chan struct{}
}

func (o *blockingOracle) FetchQuotes(ctx context.Context, symbols []string) ([]models.PriceQuote, error) {
	o.entered <- struct{}{}
	select {
	case <-o.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return nil, nil
}

func TestHoldingsSync_BusyConflict(t *testing.T) {
	a := testApp(t)
	oracle := &blockingOracle{entered: make(chan struct{}, 1), release: make(chan struct{})}
	a.Sessions = session.NewManager(a.Storage.DocumentStore(), a.AuthService, oracle, a.Config, a.Logger)
	ts := testServer(t, a)
	token := login(t, ts, "kate@example.com")

	done := make(chan int, 1)
	go func() {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/holdings/sync", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()

	select {
	case <-oracle.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("sync never reached the oracle")
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/holdings/sync", token, nil)
	assert.True(t, decodeBody[map[string]bool](t, resp)["busy"])

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/holdings/sync", token, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "sync_busy", decodeBody[ErrorResponse](t, resp).Code)

	close(oracle.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestDashboardAndReports(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "liam@example.com")

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/dashboard", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decodeBody[models.Dashboard](t, resp)
	assert.True(t, dash.NetWorth.IsPositive())

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	report := decodeBody[models.Report](t, resp)
	assert.NotEmpty(t, report.ExpenseByCategory)

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports?format=markdown", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports?format=html", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/reports/expenses.png", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))
}

func TestLedgerWebSocket_PushesSnapshots(t *testing.T) {
	ts := testServer(t, testApp(t))
	token := login(t, ts, "mia@example.com")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/ledger?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ledgerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Len(t, msg.Data.Accounts, 3)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/accounts", token, accountRequest{Name: "Savings", Type: "Bank"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for len(msg.Data.Accounts) != 4 {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	assert.Equal(t, "snapshot", msg.Type)
}

func TestLedgerWebSocket_KeepsSessionActive(t *testing.T) {
	a := testApp(t)
	ts := testServer(t, a)
	token := login(t, ts, "noah@example.com")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws/ledger?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg ledgerMessage
	require.NoError(t, conn.ReadJSON(&msg))

	sessions := a.Sessions.Sessions()
	require.Len(t, sessions, 1)
	sess := sessions[0]
	before := sess.LastSeen()
	time.Sleep(20 * time.Millisecond)

	// Written outside HTTP, so only the feed push can mark the session active.
	_, err = sess.Mutations.AddAccount(context.Background(), models.Account{Name: "Savings", Type: models.AccountTypeBank, Currency: "TWD"})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for len(msg.Data.Accounts) != 4 {
		require.NoError(t, conn.ReadJSON(&msg))
	}
	require.Eventually(t, func() bool { return sess.LastSeen().After(before) }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, a.Sessions.Reap(time.Since(before)), "a pushed feed counts as activity")
}
