package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/foodbridge/internal/config"
	"github.com/dukerupert/foodbridge/internal/database"
)

type testServer struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.Pickup.Secret = "test-secret"
	if mutate != nil {
		mutate(cfg)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(db, cfg, logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &testServer{t: t, srv: srv, ts: ts}
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil.
func (s *testServer) do(method, path string, body any, out any) int {
	s.t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, s.ts.URL+path, rdr)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (s *testServer) createAccount(email string) int64 {
	s.t.Helper()
	var acct struct {
		ID int64 `json:"user_id"`
	}
	code := s.do("POST", "/api/accounts", map[string]string{"email": email, "name": email}, &acct)
	require.Equal(s.t, http.StatusCreated, code)
	return acct.ID
}

func (s *testServer) addProduct(owner int64, name string) {
	s.t.Helper()
	code := s.do("POST", fmt.Sprintf("/api/accounts/%d/products", owner), map[string]any{
		"product_name": name,
		"expiry_date":  time.Now().AddDate(0, 0, 7).Format("2006-01-02"),
	}, nil)
	require.Equal(s.t, http.StatusCreated, code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	var body map[string]any
	assert.Equal(t, http.StatusOK, s.do("GET", "/health", nil, &body))
	assert.Equal(t, "ok", body["status"])
}

func TestDonationLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	donor := s.createAccount("donor@example.com")
	receiver := s.createAccount("receiver@example.com")
	s.addProduct(donor, "Rice")

	var proposed struct {
		Donation struct {
			ID     int64  `json:"donation_id"`
			Status string `json:"status"`
		} `json:"donation"`
		Removed []map[string]any `json:"removed_products"`
		Skipped []string         `json:"skipped_items"`
	}
	code := s.do("POST", "/api/donations", map[string]any{
		"donor_user_id": donor,
		"type_of_food":  []string{"Rice", "Milk"},
		"latitude":      -6.2,
		"longitude":     106.8,
	}, &proposed)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "proposed", proposed.Donation.Status)
	assert.Len(t, proposed.Removed, 1)
	assert.Equal(t, []string{"Milk"}, proposed.Skipped)
	id := proposed.Donation.ID

	var nearby []map[string]any
	code = s.do("GET", fmt.Sprintf("/api/donations/nearby?user_id=%d&latitude=-6.2&longitude=106.8", receiver), nil, &nearby)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, nearby, 1)

	// No QR before acceptance.
	assert.Equal(t, http.StatusConflict, s.do("GET", fmt.Sprintf("/api/donations/%d/qrcode", id), nil, nil))

	var accepted struct {
		Token string `json:"qr_hash"`
	}
	code = s.do("POST", fmt.Sprintf("/api/donations/%d/accept", id), map[string]any{"receiver_user_id": receiver}, &accepted)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, accepted.Token, 16)

	resp, err := http.Get(fmt.Sprintf("%s/api/donations/%d/qrcode", s.ts.URL, id))
	require.NoError(t, err)
	png, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	var verified struct {
		DonorPoints struct {
			Points int `json:"points"`
		} `json:"donor_points"`
		ReceiverPoints struct {
			Points int `json:"points"`
		} `json:"receiver_points"`
	}
	code = s.do("POST", "/api/donations/verify-pickup", map[string]string{"qr_hash": accepted.Token}, &verified)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10, verified.DonorPoints.Points)
	assert.Equal(t, 5, verified.ReceiverPoints.Points)

	assert.Equal(t, http.StatusNotFound,
		s.do("POST", "/api/donations/verify-pickup", map[string]string{"qr_hash": accepted.Token}, nil))

	var history []map[string]any
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/users/%d/points/history", donor), nil, &history))
	assert.Len(t, history, 1)

	var notes []map[string]any
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/accounts/%d/notifications", donor), nil, &notes))
	assert.NotEmpty(t, notes)
}

func TestRewardClaimOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	acct := s.createAccount("claimer@example.com")

	var rw struct {
		ID int64 `json:"reward_id"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", "/api/rewards", map[string]any{
		"name":            "Coffee voucher",
		"points_required": 30,
		"reward_type":     "voucher",
	}, &rw))

	var errBody map[string]string
	code := s.do("POST", fmt.Sprintf("/api/rewards/%d/claim", rw.ID), map[string]any{"user_id": acct}, &errBody)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, errBody["error"], "required 30")

	require.Equal(t, http.StatusOK, s.do("POST", fmt.Sprintf("/api/users/%d/points", acct), map[string]any{"points": 50}, nil))

	var claimed struct {
		Claim struct {
			ID int64 `json:"user_reward_id"`
		} `json:"claim"`
		Points struct {
			Points int `json:"points"`
		} `json:"points"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", fmt.Sprintf("/api/rewards/%d/claim", rw.ID), map[string]any{"user_id": acct}, &claimed))
	assert.Equal(t, 20, claimed.Points.Points)

	assert.Equal(t, http.StatusConflict, s.do("POST", fmt.Sprintf("/api/rewards/%d/claim", rw.ID), map[string]any{"user_id": acct}, nil))

	assert.Equal(t, http.StatusOK, s.do("PUT", fmt.Sprintf("/api/rewards/claims/%d/use", claimed.Claim.ID), nil, nil))
	assert.Equal(t, http.StatusConflict, s.do("PUT", fmt.Sprintf("/api/rewards/claims/%d/use", claimed.Claim.ID), nil, nil))

	var claims []map[string]any
	require.Equal(t, http.StatusOK, s.do("GET", fmt.Sprintf("/api/users/%d/rewards", acct), nil, &claims))
	require.Len(t, claims, 1)
	assert.Equal(t, true, claims[0]["is_used"])
}

func TestVerifyPickupRateLimited(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Pickup.VerifyRateLimit = 2
	})
	body := map[string]string{"qr_hash": "0000000000000000"}
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/donations/verify-pickup", body, nil))
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/donations/verify-pickup", body, nil))
	assert.Equal(t, http.StatusTooManyRequests, s.do("POST", "/api/donations/verify-pickup", body, nil))
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, s.do("GET", "/api/donations/999", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/donations/abc", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/donations?status=lost", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do("GET", "/api/donations/nearby?latitude=1", nil, nil))
	assert.Equal(t, http.StatusBadRequest, s.do("POST", "/api/donations", map[string]any{
		"donor_user_id": 42,
		"type_of_food":  []string{"Rice"},
	}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, s.do("POST", "/api/snapshots", nil, nil))
}

func TestPushEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	acct := s.createAccount("push@example.com")

	var key map[string]any
	require.Equal(t, http.StatusOK, s.do("GET", "/api/push/vapid-public-key", nil, &key))
	assert.Equal(t, false, key["enabled"])

	var sub struct {
		ID int64 `json:"id"`
	}
	require.Equal(t, http.StatusCreated, s.do("POST", fmt.Sprintf("/api/accounts/%d/push-subscriptions", acct), map[string]string{
		"endpoint": "https://push.example/abc",
		"p256dh":   "key",
		"auth":     "auth",
	}, &sub))
	assert.Equal(t, http.StatusNoContent, s.do("DELETE", fmt.Sprintf("/api/push-subscriptions/%d", sub.ID), nil, nil))
}

func TestOriginHosts(t *testing.T) {
	assert.Equal(t, []string{"localhost:5173", "app.example"},
		originHosts([]string{"http://localhost:5173", "https://app.example", "not a url"}))
	assert.Equal(t, []string{"*"}, originHosts([]string{"http://a", "*"}))
}
