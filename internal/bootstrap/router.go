package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	httpapi "github.com/mezmur-app/mezmur-sync/internal/api/http"
	"github.com/mezmur-app/mezmur-sync/internal/api/http/middleware"
	"github.com/mezmur-app/mezmur-sync/internal/catalogue"
	"github.com/mezmur-app/mezmur-sync/internal/connectivity"
	"github.com/mezmur-app/mezmur-sync/internal/history"
	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/library"
	"github.com/mezmur-app/mezmur-sync/internal/migration"
)

type RouterDeps struct {
	ServiceName string
	Version     string
	CORSOrigins []string

	// HeaderIdentity trusts X-User-Id when no token is sent. Development only.
	HeaderIdentity bool
	Verifier       middleware.Verifier
	// Session, when set, follows the last authenticated caller so the
	// reconnect sync replays the queue for that account.
	Session *identity.Session

	Stores   map[string]httpapi.Pinger
	Index    *catalogue.Index
	History  *history.Cache
	Status   httpapi.StatusSource
	Queue    httpapi.QueueLen
	Replayer connectivity.QueueReplayer
	Local    kvstore.Store
	Tasks    library.Submitter
	Migrator *migration.Engine
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(cors.New(corsConfig(dep.CORSOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Stores)
	healthHandler.RegisterRoutes(r)

	api := r.Group("/api/v1")
	api.Use(middleware.Authenticate(dep.Verifier, dep.HeaderIdentity))
	if dep.Session != nil {
		api.Use(trackSession(dep.Session))
	}

	httpapi.NewCatalogueHandler(dep.Index, dep.History).Register(api)
	httpapi.NewSyncHandler(dep.Status, dep.Queue, dep.Replayer).Register(api.Group("/sync"))
	httpapi.NewMeHandler(dep.Local, dep.Tasks, dep.Migrator).Register(api.Group("/me"))

	return r
}

func trackSession(s *identity.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := middleware.CurrentIdentity(c); id.Authenticated() {
			s.Set(id)
		}
		c.Next()
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.HeaderRequestID, middleware.HeaderUserID, middleware.HeaderAnonymous},
		ExposeHeaders: []string{middleware.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
