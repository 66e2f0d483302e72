package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestRecordTask(t *testing.T) {
	m := New(true)
	m.RecordTask("game", "completed", 2*time.Second)
	m.RecordTask("game", "completed", time.Second)
	m.RecordTask("game", "failed", 0)
	m.RecordRows("game", 4, 1)

	body := scrape(t, m)
	assert.Contains(t, body, `scoracle_lake_tasks_total{entity="game",outcome="completed"} 2`)
	assert.Contains(t, body, `scoracle_lake_tasks_total{entity="game",outcome="failed"} 1`)
	assert.Contains(t, body, `scoracle_lake_rows_written_total{entity="game"} 4`)
	assert.Contains(t, body, `scoracle_lake_rows_dropped_total{entity="game"} 1`)
	assert.Contains(t, body, `scoracle_lake_task_duration_seconds_count{entity="game"} 2`)
}

func TestDisabledAndNilAreNoops(t *testing.T) {
	var nilMetrics *Metrics
	assert.NotPanics(t, func() {
		nilMetrics.RecordTask("game", "completed", time.Second)
		nilMetrics.RecordRun("ok", time.Second)
		New(false).RecordFetchAttempt("/games", "ok")
	})
	assert.False(t, New(false).IsEnabled())
}

func TestFetchAttemptsExposed(t *testing.T) {
	m := New(true)
	m.RecordFetchAttempt("/games", "transient")

	assert.Contains(t, scrape(t, m), `scoracle_lake_fetch_attempts_total{endpoint="/games",outcome="transient"} 1`)
}
