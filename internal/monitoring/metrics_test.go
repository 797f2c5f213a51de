package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codemail/backend/internal/domain"
)

func TestMetrics(t *testing.T) {
	m := NewMetrics()

	m.RecordRedemption("success")
	m.RecordRedemption("already_used")
	m.RecordRedemption("already_used")
	m.RecordCodeIssued()
	m.RecordHTTPRequest("GET", "/api/messages", "200", 10*time.Millisecond)
	m.UpdateCodeStats(&domain.Statistics{TotalCodes: 5, ActiveCodes: 2, UsedCodes: 2, ExpiredCodes: 1})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodeRedemptions.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodeRedemptions.WithLabelValues("already_used")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CodesIssued))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CodesByState.WithLabelValues("active")))

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "codemail_access_code_redemptions_total")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRedemption("success")
		m.RecordDelivery("accepted")
		m.RecordAdminLogin(true)
		m.WebSocketConnected(1)
		m.UpdateCodeStats(&domain.Statistics{})
	})

	// 两个实例互不冲突
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
