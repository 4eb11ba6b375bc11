package server

import (
	"context"
	"net/http"
	"time"

	custommiddleware "serenity-catalog/internal/middleware"

	"go.uber.org/zap"
)

const healthCountTimeout = 2 * time.Second

type databaseHealth interface {
	Health() map[string]string
}

type productCounter interface {
	Count(ctx context.Context) (int, error)
}

// healthHandler answers 200 with the stored product count while the database
// responds, and 503 otherwise.
func healthHandler(db databaseHealth, products productCounter, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := db.Health()["status"]
		if status != "up" {
			custommiddleware.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "degraded",
				"database": status,
			})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), healthCountTimeout)
		defer cancel()

		count, err := products.Count(ctx)
		if err != nil {
			logger.Warn("Health check could not count products", zap.Error(err))
			custommiddleware.RespondWithJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status":   "degraded",
				"database": status,
			})
			return
		}

		custommiddleware.RespondWithJSON(w, http.StatusOK, map[string]interface{}{
			"status":   "ok",
			"database": status,
			"products": count,
		})
	}
}
