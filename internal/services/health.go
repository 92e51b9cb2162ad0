package services

import (
	"context"
	"fmt"
	"time"

	"github.com/localnerve/lite/internal/config"
	"github.com/localnerve/lite/internal/logging"
	"github.com/localnerve/lite/internal/utils"
	"gorm.io/gorm"
)

// Health states reported per dependency
const (
	HealthOK          = "ok"
	HealthUnreachable = "unreachable"
	HealthDisabled    = "disabled"
	HealthError       = "error"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Authorizer   string            `json:"authorizer"`
	Redis        string            `json:"redis"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(component, message string, err error) {
	r.Status = "unhealthy"
	r.Details[component+"_error"] = err.Error()
	if r.ErrorMessage != "" {
		r.ErrorMessage += "; "
	}
	r.ErrorMessage += fmt.Sprintf("%s: %v", message, err)
}

// HealthCheck checks the database and, when configured, the Authorizer and Redis
func HealthCheck(cfg *config.Config, db *gorm.DB) HealthCheckResult {
	log := logging.New("health")
	result := HealthCheckResult{
		Status:     "healthy",
		Authorizer: HealthDisabled,
		Redis:      HealthDisabled,
		Details:    make(map[string]string),
	}

	sqlDB, err := db.DB()
	if err != nil {
		result.Database = HealthError
		result.fail("database", "Database connection error", err)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = sqlDB.PingContext(ctx)
		cancel()
		if err != nil {
			result.Database = HealthUnreachable
			result.fail("database", "Database ping failed", err)
		} else {
			result.Database = HealthOK
			result.Details["database_type"] = cfg.DBType
			result.Details["database_name"] = cfg.DBDatabase
		}
	}

	if cfg.AuthEnabled() {
		if err := utils.PingAuthorizer(cfg.AuthzURL); err != nil {
			result.Authorizer = HealthUnreachable
			result.fail("authorizer", "Authorizer ping failed", err)
		} else {
			result.Authorizer = HealthOK
			result.Details["authorizer_url"] = cfg.AuthzURL
		}
	}

	if cfg.RedisURL != "" {
		if err := utils.PingRedis(cfg.RedisURL); err != nil {
			result.Redis = HealthUnreachable
			result.fail("redis", "Redis ping failed", err)
		} else {
			result.Redis = HealthOK
		}
	}

	if result.Status == "healthy" {
		log.Debug("health check passed")
	} else {
		log.Warn("health check failed", "error", result.ErrorMessage)
	}
	return result
}
