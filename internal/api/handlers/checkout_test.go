package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/Rayan-Walnut/wp-cloud/internal/core"
	"github.com/Rayan-Walnut/wp-cloud/internal/external"
	"github.com/Rayan-Walnut/wp-cloud/internal/types"
)

// mockPaymentGateway implements external.PaymentGateway for testing.
type mockPaymentGateway struct {
	session   *external.CheckoutSession
	createErr error
	params    []external.CheckoutParams
}

func (m *mockPaymentGateway) CreateCheckoutSession(ctx context.Context, params external.CheckoutParams) (*external.CheckoutSession, error) {
	m.params = append(m.params, params)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.session, nil
}

func (m *mockPaymentGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*external.CheckoutSession, error) {
	return m.session, nil
}

// mockPendingStore implements pendingstore.PendingStore for testing.
type mockPendingStore struct {
	records map[string]types.PendingDeployment
	putErr  error
}

func newMockPendingStore() *mockPendingStore {
	return &mockPendingStore{records: make(map[string]types.PendingDeployment)}
}

func (m *mockPendingStore) Put(ctx context.Context, sessionID string, record types.PendingDeployment) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.records[sessionID] = record
	return nil
}

func (m *mockPendingStore) Get(ctx context.Context, sessionID string) (types.PendingDeployment, bool, error) {
	record, ok := m.records[sessionID]
	return record, ok, nil
}

func (m *mockPendingStore) Remove(ctx context.Context, sessionID string) error {
	delete(m.records, sessionID)
	return nil
}

func (m *mockPendingStore) List(ctx context.Context) (map[string]types.PendingDeployment, error) {
	out := make(map[string]types.PendingDeployment, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return out, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func validCheckoutBody() []byte {
	b, _ := json.Marshal(CreateCheckoutRequest{
		Username: "alice",
		Domain:   "alice.example.com",
		Email:    "alice@example.com",
		PriceID:  "price_123",
	})
	return b
}

func postCheckout(t *testing.T, handler *CheckoutHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/api/stripe/create-checkout-session", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp core.APIErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp.Error.Code
}

func newTestCheckoutHandler(gateway *mockPaymentGateway, store *mockPendingStore) *CheckoutHandler {
	return NewCheckoutHandler(gateway, store, core.NewValidator(), discardLogger())
}

func TestCheckout_Success(t *testing.T) {
	gateway := &mockPaymentGateway{session: &external.CheckoutSession{
		ID:  "cs_test_1",
		URL: "https://checkout.stripe.com/c/pay/cs_test_1",
	}}
	store := newMockPendingStore()
	handler := newTestCheckoutHandler(gateway, store)

	rec := postCheckout(t, handler, validCheckoutBody())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CheckoutResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success true")
	}
	if resp.SessionID != "cs_test_1" {
		t.Errorf("expected session_id cs_test_1, got %q", resp.SessionID)
	}
	if resp.SessionURL != "https://checkout.stripe.com/c/pay/cs_test_1" {
		t.Errorf("unexpected session_url %q", resp.SessionURL)
	}

	record, ok := store.records["cs_test_1"]
	if !ok {
		t.Fatal("expected a pending record keyed by the session id")
	}
	if record.Username != "alice" || record.Domain != "alice.example.com" || record.Email != "alice@example.com" {
		t.Errorf("unexpected pending record %+v", record)
	}
	if record.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
}

func TestCheckout_ForwardsParamsToGateway(t *testing.T) {
	gateway := &mockPaymentGateway{session: &external.CheckoutSession{ID: "cs_test_1"}}
	handler := newTestCheckoutHandler(gateway, newMockPendingStore())

	postCheckout(t, handler, validCheckoutBody())

	if len(gateway.params) != 1 {
		t.Fatalf("expected 1 gateway call, got %d", len(gateway.params))
	}
	got := gateway.params[0]
	want := external.CheckoutParams{
		Username: "alice",
		Domain:   "alice.example.com",
		Email:    "alice@example.com",
		PriceID:  "price_123",
	}
	if got != want {
		t.Errorf("gateway params = %+v, want %+v", got, want)
	}
}

func TestCheckout_ValidationFailures(t *testing.T) {
	cases := []struct {
		name string
		body CreateCheckoutRequest
	}{
		{"missing username", CreateCheckoutRequest{Domain: "a.example.com", Email: "a@example.com", PriceID: "price_1"}},
		{"missing domain", CreateCheckoutRequest{Username: "a", Email: "a@example.com", PriceID: "price_1"}},
		{"missing email", CreateCheckoutRequest{Username: "a", Domain: "a.example.com", PriceID: "price_1"}},
		{"missing price_id", CreateCheckoutRequest{Username: "a", Domain: "a.example.com", Email: "a@example.com"}},
		{"invalid email", CreateCheckoutRequest{Username: "a", Domain: "a.example.com", Email: "not-an-email", PriceID: "price_1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gateway := &mockPaymentGateway{session: &external.CheckoutSession{ID: "cs_test_1"}}
			handler := newTestCheckoutHandler(gateway, newMockPendingStore())

			body, _ := json.Marshal(tc.body)
			rec := postCheckout(t, handler, body)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if len(gateway.params) != 0 {
				t.Error("gateway must not be called for an invalid request")
			}
		})
	}
}

func TestCheckout_MalformedJSONIs400(t *testing.T) {
	handler := newTestCheckoutHandler(&mockPaymentGateway{}, newMockPendingStore())

	rec := postCheckout(t, handler, []byte(`{"username":`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestCheckout_GatewayFailurePropagates(t *testing.T) {
	gateway := &mockPaymentGateway{
		createErr: types.NewAppError(types.ErrCodeGatewayStripe, "stripe rejected the request", nil),
	}
	store := newMockPendingStore()
	handler := newTestCheckoutHandler(gateway, store)

	rec := postCheckout(t, handler, validCheckoutBody())

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeGatewayStripe) {
		t.Errorf("expected code %s, got %s", types.ErrCodeGatewayStripe, code)
	}
	if len(store.records) != 0 {
		t.Error("no pending record should exist when session creation fails")
	}
}

func TestCheckout_StoreFailureFailsTheRequest(t *testing.T) {
	gateway := &mockPaymentGateway{session: &external.CheckoutSession{ID: "cs_test_1"}}
	store := newMockPendingStore()
	store.putErr = types.NewAppError(types.ErrCodeStorageWrite, "disk full", nil)
	handler := newTestCheckoutHandler(gateway, store)

	rec := postCheckout(t, handler, validCheckoutBody())

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != string(types.ErrCodeStorageWrite) {
		t.Errorf("expected code %s, got %s", types.ErrCodeStorageWrite, code)
	}
}
