package observability_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/interview-prep-api/internal/observability"
)

func scrape(t *testing.T, accept string) (*http.Response, string) {
	t.Helper()
	app := fiber.New()
	app.Get(observability.MetricsPath, observability.MetricsHandler())

	req := httptest.NewRequest(http.MethodGet, observability.MetricsPath, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp, string(body)
}

func TestMetricsHandlerSeedsLifecycleSeries(t *testing.T) {
	resp, body := scrape(t, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Contains(t, body, `interview_transitions_total{status="created"} 0`)
	require.Contains(t, body, `interview_transitions_total{status="in-progress"} 0`)
	require.Contains(t, body, `interview_transitions_total{status="completed"} 0`)
	require.Contains(t, body, `interview_status_cache_lookups_total{result="hit"} 0`)
	require.Contains(t, body, `interview_status_cache_lookups_total{result="miss"} 0`)
}

func TestMetricsHandlerNegotiatesOpenMetrics(t *testing.T) {
	resp, body := scrape(t, "application/openmetrics-text; version=1.0.0")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "application/openmetrics-text")
	require.Contains(t, body, "# EOF")
}
