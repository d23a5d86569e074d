package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/orderdesk/internal/apiclient"
	"github.com/kiwari-pos/orderdesk/internal/auth"
	"github.com/kiwari-pos/orderdesk/internal/catalog"
	"github.com/kiwari-pos/orderdesk/internal/config"
	"github.com/kiwari-pos/orderdesk/internal/enum"
	"github.com/kiwari-pos/orderdesk/internal/handler"
	"github.com/kiwari-pos/orderdesk/internal/metrics"
	"github.com/kiwari-pos/orderdesk/internal/notify"
	"github.com/kiwari-pos/orderdesk/internal/router"
	"github.com/kiwari-pos/orderdesk/internal/service"
	"github.com/kiwari-pos/orderdesk/internal/store"
	"github.com/kiwari-pos/orderdesk/internal/ws"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "router-test-secret"

// upstream records the Authorization header of every call it receives.
type upstream struct {
	mu    sync.Mutex
	auths []string
}

func (u *upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.auths = append(u.auths, r.Header.Get("Authorization"))
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/products":
		w.Write([]byte(`{"success":true,"data":[{"id":1,"name":"Mug","cost":"2","price":"10","stock":4}]}`))
	case "/api/couriers":
		w.Write([]byte(`{"success":true,"data":["Local Rider"]}`))
	default:
		w.Write([]byte(`{"success":true,"data":[]}`))
	}
}

func (u *upstream) lastAuth() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.auths) == 0 {
		return ""
	}
	return u.auths[len(u.auths)-1]
}

func setupRouter(t *testing.T) (http.Handler, *upstream) {
	t.Helper()
	logger, _ := test.NewNullLogger()

	up := &upstream{}
	srv := httptest.NewServer(up)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	cfg := &config.Config{JWTSecret: testJWTSecret, AllowedOrigins: []string{"http://localhost:5173"}}
	m := metrics.New()
	client := apiclient.New(srv.URL, "service-token", time.Second, logger)
	cat := catalog.New(client, logger, m)
	_, err := cat.Load(ctx)
	require.NoError(t, err)

	hub := ws.NewHub()
	go hub.Run(ctx)

	drafts := service.NewDraftService(store.NewMemory(), client, cat, hub, notify.Nop{}, m, logger)
	refs := service.NewReferenceService(client, logger)

	r := router.New(cfg, router.Deps{
		Drafts:    handler.NewDraftHandler(drafts, logger),
		Orders:    handler.NewOrderHandler(client, notify.Nop{}, logger),
		Products:  handler.NewProductHandler(cat, logger),
		Alerts:    handler.NewAlertHandler(cat, client, 5, 7, logger),
		Reference: handler.NewReferenceHandler(refs, logger),
		Hub:       hub,
		Metrics:   m,
		Log:       logger,
	})
	return r, up
}

func token(t *testing.T, features ...string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testJWTSecret, uuid.New(), enum.UserRoleUser, features, time.Hour)
	require.NoError(t, err)
	return tok
}

func do(r http.Handler, method, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// =====================
// Public routes
// =====================

func TestHealthAndMetrics(t *testing.T) {
	r, _ := setupRouter(t)

	rr := do(r, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = do(r, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "orderdesk_catalog_refreshes_total")
}

// =====================
// Access control
// =====================

func TestAccessControl(t *testing.T) {
	r, _ := setupRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"no token", "GET", "/drafts", "", http.StatusUnauthorized},
		{"bad token", "GET", "/drafts", "not-a-jwt", http.StatusUnauthorized},
		{"missing orders feature", "GET", "/drafts", token(t, enum.FeatureDashboard), http.StatusForbidden},
		{"orders feature", "GET", "/drafts", token(t, enum.FeatureOrders), http.StatusOK},
		{"alerts need dashboard", "GET", "/alerts", token(t, enum.FeatureOrders), http.StatusForbidden},
		{"alerts", "GET", "/alerts", token(t, enum.FeatureDashboard), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(r, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

// =====================
// Wiring
// =====================

func TestDraftRoundTrip(t *testing.T) {
	r, _ := setupRouter(t)
	tok := token(t, enum.FeatureOrders)

	rr := do(r, "POST", "/drafts", tok)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	require.NotEmpty(t, created.ID)

	rr = do(r, "GET", "/drafts/"+created.ID, tok)
	assert.Equal(t, http.StatusOK, rr.Code)

	// Another user cannot see it.
	rr = do(r, "GET", "/drafts/"+created.ID, token(t, enum.FeatureOrders))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCallerTokenIsForwarded(t *testing.T) {
	r, up := setupRouter(t)
	tok := token(t, enum.FeatureOrders)

	rr := do(r, "GET", "/reference/couriers", tok)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Local Rider")
	assert.Equal(t, "Bearer "+tok, up.lastAuth())
}

func TestCORSPreflight(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest("OPTIONS", "/drafts", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.Contains(rr.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
