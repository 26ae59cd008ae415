package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		format  string
		wantErr bool
	}{
		{"json info", "info", "json", false},
		{"console debug", "debug", "console", false},
		{"defaults", "", "", false},
		{"invalid level", "loud", "json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, logger)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			_ = logger.Sync()
		})
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			match := true
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					match = false
				}
			}
			if match {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenIssued()
	c.RecordTokenIssued()
	c.RecordTokenRejected("expired")
	c.RecordLedgerIssued("VERIFICATION")
	c.RecordLedgerConsumption("PASSWORD_RESET", "already_used")
	c.RecordReconciliation("created")
	c.RecordSwept(5)
	c.RecordSwept(2)

	assert.Equal(t, 2.0, counterValue(t, reg, "securestarter_session_tokens_issued_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "securestarter_session_tokens_rejected_total", map[string]string{"reason": "expired"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "securestarter_ephemeral_tokens_issued_total", map[string]string{"kind": "VERIFICATION"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "securestarter_ephemeral_token_consumptions_total",
		map[string]string{"kind": "PASSWORD_RESET", "outcome": "already_used"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "securestarter_identity_reconciliations_total", map[string]string{"outcome": "created"}))
	assert.Equal(t, 7.0, counterValue(t, reg, "securestarter_ephemeral_tokens_swept_total", nil))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordTokenIssued()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "securestarter_session_tokens_issued_total 1")
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))

	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	assert.Same(t, c, OrNop(c))
}
