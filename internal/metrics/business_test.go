package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertBizMetricLine checks that the Prometheus output contains a business metric
// matching the given name, partial label pattern, and value. Uses regex to handle
// extra OTel scope labels injected by the Prometheus exporter.
func assertBizMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func scrape(t *testing.T, provider *Provider) string {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)
	return w.Body.String()
}

func TestNewBusinessMetrics(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)
	assert.NotNil(t, businessMetrics)
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOpMetrics := NewNoOpBusinessMetrics()
	assert.IsType(t, &NoOpBusinessMetrics{}, noOpMetrics)

	ctx := context.Background()
	noOpMetrics.RecordOperation(ctx, "token", "issue", "success")
	noOpMetrics.RecordDuration(ctx, "token", "issue", 100*time.Millisecond, "success")
	noOpMetrics.RecordTokenEvent(ctx, "session", "issued")
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	ctx := context.Background()

	bm.RecordOperation(ctx, "token", "issue", "success")
	bm.RecordOperation(ctx, "token", "issue", "success")
	bm.RecordOperation(ctx, "token", "open", "error")
	bm.RecordOperation(ctx, "lifecycle", "rotate_keys", "success")

	bm.RecordDuration(ctx, "token", "issue", 50*time.Millisecond, "success")
	bm.RecordDuration(ctx, "token", "issue", 60*time.Millisecond, "success")
	bm.RecordDuration(ctx, "lifecycle", "rotate_keys", 5*time.Millisecond, "success")

	bm.RecordTokenEvent(ctx, "refresh", "issued")
	bm.RecordTokenEvent(ctx, "refresh", "issued")
	bm.RecordTokenEvent(ctx, "session", "rejected")

	output := scrape(t, provider)

	assertBizMetricLine(t, output,
		`integration_test_operations_total`,
		`domain="token".*operation="issue".*status="success"`,
		`2`,
	)
	assertBizMetricLine(t, output,
		`integration_test_operations_total`,
		`domain="token".*operation="open".*status="error"`,
		`1`,
	)
	assertBizMetricLine(t, output,
		`integration_test_operation_duration_seconds_count`,
		`domain="token".*operation="issue".*status="success"`,
		`2`,
	)
	assertBizMetricLine(t, output,
		`integration_test_token_events_total`,
		`event="issued".*token_type="refresh"`,
		`2`,
	)
	assertBizMetricLine(t, output,
		`integration_test_token_events_total`,
		`event="rejected".*token_type="session"`,
		`1`,
	)
}
