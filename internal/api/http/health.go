package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is a backend whose liveness is reported by the health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Stores    map[string]string `json:"stores,omitempty"`
}

type HealthHandler struct {
	serviceName string
	version     string
	stores      map[string]Pinger
}

// NewHealthHandler reports on the named stores. A nil Pinger is reported
// as "disabled".
func NewHealthHandler(serviceName, version string, stores map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		serviceName: serviceName,
		version:     version,
		stores:      stores,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	var statuses map[string]string
	if len(h.stores) > 0 {
		statuses = make(map[string]string, len(h.stores))
	}
	for name, p := range h.stores {
		if p == nil {
			statuses[name] = "disabled"
			continue
		}
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), 1*time.Second)
		if err := p.Ping(pingCtx); err != nil {
			statuses[name] = "down"
		} else {
			statuses[name] = "up"
		}
		cancel()
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Service:   h.serviceName,
		Version:   h.version,
		Stores:    statuses,
	})
}

func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.HealthCheck)
	r.GET("/healthz", h.HealthCheck)
}
