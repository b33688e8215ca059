package knowledgebase

import (
	"context"
	"time"

	"docbuddy/src/infrastructure/log"
)

const healthCheckTimeout = 3 * time.Second

type systemService struct {
	components map[string]Pinger
}

// NewSystemService reports the health of the named components.
func NewSystemService(components map[string]Pinger) SystemService {
	return &systemService{
		components: components,
	}
}

func (s *systemService) CheckHealth(ctx context.Context) (*HealthStatus, error) {
	status := &HealthStatus{
		Status:     "healthy",
		Components: make(map[string]ComponentStatus, len(s.components)),
	}

	for name, c := range s.components {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		err := c.Ping(pingCtx)
		cancel()

		if err != nil {
			log.Error(err, "Health check failed", "component", name)
			status.Components[name] = StatusDown
			status.Status = "unhealthy"
			continue
		}
		status.Components[name] = StatusUp
	}

	return status, nil
}
