package sheriff

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/allbeads/allbeads/sheriff"

// metrics holds OTel instruments for the sheriff daemon. All methods are
// nil-safe so callers don't need to guard against disabled telemetry,
// the same pattern internal/daemon/metrics.go uses.
type metrics struct {
	cycleTotal      metric.Int64Counter
	cycleErrorTotal metric.Int64Counter
	repoSyncTotal   metric.Int64Counter
	shadowOpsTotal  metric.Int64Counter
}

// newMetrics registers sheriff OTel instruments against the global
// MeterProvider. If no provider has been configured, the global no-op
// provider's instruments are returned and recording does nothing; the
// recording methods below are also no-ops on a nil *metrics (as when
// registration fails).
func newMetrics() (*metrics, error) {
	m := otel.GetMeterProvider().Meter(meterName)
	sm := &metrics{}

	var err error
	sm.cycleTotal, err = m.Int64Counter("allbeads.sheriff.cycle.total",
		metric.WithDescription("Total number of completed sheriff aggregation cycles"),
	)
	if err != nil {
		return nil, err
	}

	sm.cycleErrorTotal, err = m.Int64Counter("allbeads.sheriff.cycle.errors.total",
		metric.WithDescription("Total number of sheriff cycles that recorded at least one repo or sync error"),
	)
	if err != nil {
		return nil, err
	}

	sm.repoSyncTotal, err = m.Int64Counter("allbeads.sheriff.repo_sync.total",
		metric.WithDescription("Total number of per-repo sync attempts, labeled by outcome"),
	)
	if err != nil {
		return nil, err
	}

	sm.shadowOpsTotal, err = m.Int64Counter("allbeads.sheriff.shadow_ops.total",
		metric.WithDescription("Total number of shadow bead create/update/delete operations, labeled by op"),
	)
	if err != nil {
		return nil, err
	}

	return sm, nil
}

func (m *metrics) recordCycle(ctx context.Context, hadError bool) {
	if m == nil {
		return
	}
	m.cycleTotal.Add(ctx, 1)
	if hadError {
		m.cycleErrorTotal.Add(ctx, 1)
	}
}

func (m *metrics) recordRepoSync(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.repoSyncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) recordShadowOp(ctx context.Context, op string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.shadowOpsTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("op", op)))
}
