package obs

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RemoteRequest("notes.list", "ok")
	c.RemoteRequest("notes.list", "ok")
	c.RemoteRequest("notes.list", "transport")
	c.CacheFallback("notes")
	c.PushEvent("created")
	c.PushReconnect()
	c.OutboxOp("replayed")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("notes.list", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("notes.list", "transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallbacks.WithLabelValues("notes")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.outbox.WithLabelValues("replayed")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg).PushEvent("deleted")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `studyctl_push_events_total{type="deleted"} 1`)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, Nop{}, OrNop(nil))
	c := NewCollector(prometheus.NewRegistry())
	assert.Same(t, c, OrNop(c))
}
