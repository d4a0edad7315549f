package v1

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/chatrelay/server/internal/observability"
	"github.com/hrygo/chatrelay/server/security"
)

// SecurityStatsResponse is the administrative view of the admission gate.
type SecurityStatsResponse struct {
	security.GateStats
	ActiveConnections int                            `json:"active_connections"`
	Metrics           *observability.MetricsSnapshot `json:"metrics"`
}

// GetSecurityStats returns blocked origins, in-window load and turn metrics.
// GET /api/v1/admin/security/stats
func (s *APIV1Service) GetSecurityStats(c echo.Context) error {
	return c.JSON(http.StatusOK, SecurityStatsResponse{
		GateStats:         s.Gate.Stats(),
		ActiveConnections: s.Hub.Count(),
		Metrics:           s.Metrics.Snapshot(),
	})
}

// UnblockOrigin lifts a block and clears the origin's suspicion score.
// DELETE /api/v1/admin/security/blocks/:origin
func (s *APIV1Service) UnblockOrigin(c echo.Context) error {
	origin, err := url.PathUnescape(c.Param("origin"))
	if err != nil || origin == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Code: "VALIDATION_FAILED", Error: "invalid origin"})
	}
	if !s.Gate.Unblock(origin) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Code: "NOT_FOUND", Error: "origin is not blocked"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Origin unblocked"})
}
