package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatrelay/server/internal/observability"
)

// MetricsOverviewResponse summarizes turn processing since the process started.
type MetricsOverviewResponse struct {
	TotalTurns    int64   `json:"total_turns"`
	SuccessRate   float64 `json:"success_rate"`
	AvgLatencyMs  int64   `json:"avg_latency_ms"`
	DegradedTurns int64   `json:"degraded_turns"`
	ErrorCount    int64   `json:"error_count"`
	ModelCalls    int64   `json:"model_calls"`
	Rejections    int64   `json:"rejections"`
	Connections   int     `json:"connections"`
}

// GetMetricsOverview returns the in-process turn metrics.
// GET /api/v1/admin/metrics/overview
func (s *APIV1Service) GetMetricsOverview(c echo.Context) error {
	snapshot := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, newMetricsOverview(snapshot, s.Hub.Count()))
}

func newMetricsOverview(snapshot *observability.MetricsSnapshot, connections int) MetricsOverviewResponse {
	var rejections int64
	for _, n := range snapshot.Rejections {
		rejections += n
	}
	return MetricsOverviewResponse{
		TotalTurns:    snapshot.TurnTotal,
		SuccessRate:   snapshot.SuccessRate(),
		AvgLatencyMs:  snapshot.AverageTurnMs,
		DegradedTurns: snapshot.TurnDegraded,
		ErrorCount:    snapshot.TurnFailed,
		ModelCalls:    snapshot.ModelCalls,
		Rejections:    rejections,
		Connections:   connections,
	}
}
