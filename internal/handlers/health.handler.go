package handlers

import (
	"context"

	"github.com/fasthttp/router"

	xhttp "github.com/neemapp/chanda-gateway/pkg/http"
)

// HealthChecker reports whether one dependency is reachable.
type HealthChecker func(ctx context.Context) error

type HealthHandler struct {
	checkers map[string]HealthChecker
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(checkers map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
	}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	resp := healthResponse{Status: "healthy"}

	if len(h.checkers) > 0 {
		resp.Components = make(map[string]string, len(h.checkers))
		for name, check := range h.checkers {
			if err := check(ctx); err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "unhealthy"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	status := xhttp.StatusOK
	if resp.Status != "healthy" {
		status = xhttp.StatusServiceUnavailable
	}
	writeJSON(ctx, status, resp)
}
