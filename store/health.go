package store

import (
	"context"
	"time"

	"github.com/saiset-co/sai-state/types"
)

func registerHealthChecker(health types.HealthManager, backend types.StoreBackend, storeType string) {
	health.RegisterChecker("store", func(ctx context.Context) types.HealthCheck {
		check := types.HealthCheck{
			Name:      "store",
			Status:    types.StatusHealthy,
			LastCheck: time.Now(),
		}

		if !backend.IsRunning() {
			check.Status = types.StatusUnhealthy
			check.Message = "backend not running: " + storeType
		}

		return check
	})
}
