package metrics

import (
	"context"
	"time"

	datadog "github.com/DataDog/datadog-api-client-go/api/v2/datadog"
	"github.com/rs/zerolog/log"
)

const (
	BridgeSuccess = "bridging.success"
	BridgeFailure = "bridging.failure"
)

// Reporter publishes gauge points. Implementations must not block the
// bridge loop for long and must swallow their own errors.
type Reporter interface {
	Gauge(ctx context.Context, name string, value float64, tags []string)
}

type Nop struct{}

func (Nop) Gauge(context.Context, string, float64, []string) {}

// Datadog submits metrics through the Datadog v2 metrics intake.
type Datadog struct {
	client   *datadog.APIClient
	keys     map[string]datadog.APIKey
	baseTags []string
	timeout  time.Duration
}

func NewDatadog(apiKey, appKey string, baseTags []string) *Datadog {
	configuration := datadog.NewConfiguration()
	return &Datadog{
		client: datadog.NewAPIClient(configuration),
		keys: map[string]datadog.APIKey{
			"apiKeyAuth": {
				Key: apiKey,
			},
			"appKeyAuth": {
				Key: appKey,
			},
		},
		baseTags: baseTags,
		timeout:  10 * time.Second,
	}
}

func (d *Datadog) Gauge(ctx context.Context, name string, value float64, tags []string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, datadog.ContextAPIKeys, d.keys)

	allTags := append(append([]string{}, tags...), d.baseTags...)
	_, _, err := d.client.MetricsApi.SubmitMetrics(ctx, newGaugePayload(name, value, allTags, time.Now()))
	if err != nil {
		log.Warn().Err(err).Str("metric", name).Msg("failed to submit metric to datadog")
		return
	}
	log.Debug().Str("metric", name).Msg("metric posted")
}

func newGaugePayload(name string, value float64, tags []string, at time.Time) datadog.MetricPayload {
	point := datadog.MetricPoint{
		Timestamp: datadog.PtrInt64(at.Unix()),
		Value:     datadog.PtrFloat64(value),
	}
	series := datadog.MetricSeries{
		Metric: name,
		Type:   datadog.METRICINTAKETYPE_GAUGE.Ptr(),
		Points: []datadog.MetricPoint{point},
		Tags:   tags,
	}
	return datadog.MetricPayload{
		Series: []datadog.MetricSeries{series},
	}
}
