package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopWhenDisabled(t *testing.T) {
	m := New(Config{Enabled: false})
	_, ok := m.(noopMetrics)
	assert.True(t, ok, "should return noop metrics when disabled")

	m.ChangeEnqueued("topic", true)
	m.BatchFlushed(3)
	m.CountdownEvent("started")
	m.DeliveryResult(ResultSent)
	m.SetTrackedEntities(4)

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCountersWhenEnabled(t *testing.T) {
	m, ok := New(Config{Enabled: true}).(*Metrics)
	require.True(t, ok)

	m.ChangeEnqueued("topic", false)
	m.ChangeEnqueued("topic", true)
	m.ChangeEnqueued("rank", false)
	m.DeliveryResult(ResultFailed)
	m.SetTrackedEntities(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.changesTotal.WithLabelValues("topic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.postponedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues(ResultFailed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.trackedEntities))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "pushwatch_changes_enqueued_total"))
}
