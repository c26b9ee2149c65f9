package bootstrap

import (
	"github.com/gin-gonic/gin"

	"github.com/mezmur-app/mezmur-sync/config"
)

// GinMode maps the app environment to a gin mode. Production runs in
// release mode, APP_ENV=test silences gin's route dump, anything else is
// debug.
func GinMode(cfg *config.Config) string {
	switch {
	case cfg.IsProduction():
		return gin.ReleaseMode
	case cfg.App.Environment == "test":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}

// SetGinMode applies GinMode to the process-wide gin mode.
func SetGinMode(cfg *config.Config) {
	gin.SetMode(GinMode(cfg))
}
