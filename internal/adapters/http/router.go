package http

import (
	"context"
	"net/http"
	"os"

	"github.com/dkeye/voicelink/internal/adapters/signal"
	"github.com/dkeye/voicelink/internal/app/orch"
	"github.com/dkeye/voicelink/internal/config"
	"github.com/dkeye/voicelink/internal/domain"
	"github.com/dkeye/voicelink/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const clientTokenKey = "client_token"

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = string(domain.GenerateIdentity())
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

// identityOf prefers an explicit ?identity= over the client-token cookie.
func identityOf(c *gin.Context) (domain.Identity, error) {
	raw := c.Query("identity")
	if raw == "" {
		raw = c.GetString(clientTokenKey)
	}
	return domain.NewIdentity(raw)
}

type Deps struct {
	Orch     *orch.Orchestrator
	Metrics  *metrics.ServerMetrics
	Gatherer prometheus.Gatherer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoicelinkSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		if _, err := os.Stat(cfg.StaticPath); err == nil {
			r.Static("/static", cfg.StaticPath)
			r.GET("/", func(c *gin.Context) {
				c.File(cfg.StaticPath + "/index.html")
			})
			log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("serving static files")
		}
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	ctrl := signal.NewSignalWSController(deps.Orch, cfg, deps.Metrics)
	h := handlers{orch: deps.Orch}

	api := r.Group("/api")
	api.GET("/channels", h.listChannels)
	api.GET("/channels/:name/members", h.channelMembers)
	api.GET("/ws/signal", func(c *gin.Context) {
		id, err := identityOf(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Info().Str("module", "adapters.http").Str("peer", string(id)).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c, id)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
