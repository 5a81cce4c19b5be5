package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, cacheLookupsTotal)
	require.NotNil(t, embedRetriesTotal)
	require.NotNil(t, renderDurationSeconds)
}

func TestObserveCacheLookup(t *testing.T) {
	Init()
	hitsBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit"))
	missesBefore := testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss"))

	ObserveCacheLookup(true)
	ObserveCacheLookup(false)
	ObserveCacheLookup(false)

	require.InDelta(t, hitsBefore+1, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("hit")), 0.001)
	require.InDelta(t, missesBefore+2, testutil.ToFloat64(cacheLookupsTotal.WithLabelValues("miss")), 0.001)
}

func TestObserveRenderCountsBytes(t *testing.T) {
	Init()
	before := testutil.ToFloat64(screenshotBytesTotal)

	ObserveRender(true, 2*time.Second, 1024)
	ObserveRender(false, time.Second, 0)

	require.InDelta(t, before+1024, testutil.ToFloat64(screenshotBytesTotal), 0.001)
}

func TestStageStartedTracksInflight(t *testing.T) {
	done := StageStarted("render-test")
	require.InDelta(t, 1, testutil.ToFloat64(inflightStageOperation.WithLabelValues("render-test")), 0.001)
	done()
	require.InDelta(t, 0, testutil.ToFloat64(inflightStageOperation.WithLabelValues("render-test")), 0.001)
}

func TestHandlerExposesCollectors(t *testing.T) {
	ObserveEmbedRetry()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "sitelens_embed_retries_total"))
}
