package metrics

import (
	"context"
	"testing"
	"time"

	datadog "github.com/DataDog/datadog-api-client-go/api/v2/datadog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGaugePayload(t *testing.T) {
	at := time.Unix(1_700_000_000, 0)
	payload := newGaugePayload(BridgeSuccess, 1, []string{"network:Base"}, at)

	require.Len(t, payload.Series, 1)
	series := payload.Series[0]
	assert.Equal(t, BridgeSuccess, series.Metric)
	assert.Equal(t, datadog.METRICINTAKETYPE_GAUGE, *series.Type)
	assert.Equal(t, []string{"network:Base"}, series.Tags)
	require.Len(t, series.Points, 1)
	assert.Equal(t, int64(1_700_000_000), *series.Points[0].Timestamp)
	assert.Equal(t, 1.0, *series.Points[0].Value)
}

func TestNopReporter(t *testing.T) {
	var r Reporter = Nop{}
	r.Gauge(context.Background(), BridgeFailure, 1, nil)
}
