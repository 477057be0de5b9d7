package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"talon/internal/exits"
	"talon/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCore struct {
	updated   []types.ContextFragment
	updateErr error

	packet   *types.DecisionPacket
	notReady *types.NotReady
	decide   error

	sweep exits.SweepResult
}

func (f *fakeCore) UpdateContext(frag types.ContextFragment) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = append(f.updated, frag)
	return nil
}

func (f *fakeCore) TryBuildDecision(_ context.Context, _ string) (*types.DecisionPacket, *types.NotReady, error) {
	return f.packet, f.notReady, f.decide
}

func (f *fakeCore) EvaluateOpenPositions(_ context.Context) (exits.SweepResult, error) {
	return f.sweep, nil
}

func newTestServer(t *testing.T, core Core) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{Addr: ":0", Core: core})
	require.NoError(t, err)
	return srv
}

func validFragmentBody() string {
	return `{
		"source": "regime",
		"symbol": "BTCUSDT",
		"received_at": "2026-08-25T12:00:00Z",
		"regime": {"phase": "markup", "bias": "BULLISH", "confidence": 85}
	}`
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, &fakeCore{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_AcceptsValidFragment(t *testing.T) {
	core := &fakeCore{}
	srv := newTestServer(t, core)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(validFragmentBody()))
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, core.updated, 1)
	frag := core.updated[0]
	assert.Equal(t, types.SourceRegime, frag.Source)
	assert.Equal(t, "BTCUSDT", frag.Symbol)
	require.NotNil(t, frag.Regime)
	assert.Equal(t, 85.0, frag.Regime.Confidence)
	assert.Equal(t, time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC), frag.ReceivedAt.UTC())
}

func TestServer_RejectsMalformedFragments(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", `{"source": "regime"`},
		{"unknown source", `{"source": "tarot", "symbol": "BTCUSDT", "received_at": "2026-08-25T12:00:00Z"}`},
		{"missing payload", `{"source": "regime", "symbol": "BTCUSDT", "received_at": "2026-08-25T12:00:00Z"}`},
		{"confidence out of range", `{"source": "regime", "symbol": "BTCUSDT", "received_at": "2026-08-25T12:00:00Z", "regime": {"phase": "markup", "bias": "BULLISH", "confidence": 150}}`},
		{"empty symbol", `{"source": "regime", "symbol": "", "received_at": "2026-08-25T12:00:00Z", "regime": {"phase": "markup", "bias": "BULLISH", "confidence": 80}}`},
	}

	core := &fakeCore{}
	srv := newTestServer(t, core)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/context", strings.NewReader(tc.body))
			srv.Handler().ServeHTTP(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	assert.Empty(t, core.updated, "rejected fragments must never reach the store")
}

func TestServer_DecideReturnsPacket(t *testing.T) {
	core := &fakeCore{packet: &types.DecisionPacket{
		ID:     "pkt-1",
		Symbol: "BTCUSDT",
		Action: types.ActionExecute,
	}}
	srv := newTestServer(t, core)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/decide/BTCUSDT", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var pkt types.DecisionPacket
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pkt))
	assert.Equal(t, "pkt-1", pkt.ID)
	assert.Equal(t, types.ActionExecute, pkt.Action)
}

func TestServer_DecideNotReadyConflict(t *testing.T) {
	core := &fakeCore{notReady: &types.NotReady{
		Symbol:  "BTCUSDT",
		Missing: []string{"regime"},
	}}
	srv := newTestServer(t, core)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/decide/BTCUSDT", nil))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "not_ready")
	assert.Contains(t, w.Body.String(), "regime")
}

func TestServer_ExitSweep(t *testing.T) {
	core := &fakeCore{sweep: exits.SweepResult{Evaluated: 3, Closed: 1}}
	srv := newTestServer(t, core)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/exits/sweep", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var result exits.SweepResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Evaluated)
	assert.Equal(t, 1, result.Closed)
}
