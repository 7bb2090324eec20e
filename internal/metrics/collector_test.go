package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	t.Parallel()

	c := NewCollector("polymind")
	c.RunStarted()
	c.RunStarted()
	c.RunCompleted()
	c.RunFailed()
	c.StageExecuted("size_order", 25*time.Millisecond, nil)
	c.StageExecuted("size_order", 10*time.Millisecond, errors.New("boom"))
	c.OrderSubmitted()
	c.OrderSkipped("conviction")

	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsFailed))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stageExecutions.WithLabelValues("size_order", "ok")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.stageExecutions.WithLabelValues("size_order", "error")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(c.ordersSkipped.WithLabelValues("conviction")))
}

func TestCollector_Handler(t *testing.T) {
	t.Parallel()

	c := NewCollector("polymind")
	c.RunStarted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "polymind_runs_started_total 1")
}

func TestCollector_IndependentRegistries(t *testing.T) {
	t.Parallel()

	// Two collectors must not clash on registration.
	a := NewCollector("polymind")
	b := NewCollector("polymind")
	a.RunStarted()
	assert.Equal(t, float64(0), testutil.ToFloat64(b.runsStarted))
}
