package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/clinvia/teleconsulta/internal/adapters/signal"
	"github.com/clinvia/teleconsulta/internal/app"
	"github.com/clinvia/teleconsulta/internal/config"
)

// ClientTokenMiddleware hands every browser a stable cookie so fresh
// WS connections of one client can be correlated in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *app.Hub, broker *app.AccessBroker, lifecycle *app.Lifecycle) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConsultaSessions", store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "adapters.http").Msg("router setup")

	h := &APIHandlers{Broker: broker, Lifecycle: lifecycle, Cfg: cfg}
	wsCtl := signal.NewWSController(hub, broker)

	api := r.Group("/api")

	// Public: a guest holds a code, not a bearer token.
	api.POST("/invitations/redeem", h.RedeemInvitation)

	authed := api.Group("", AuthMiddleware(cfg.Secret))
	authed.POST("/sessions", h.CreateSession)
	authed.GET("/sessions/:id/join-info", h.JoinInfo)
	authed.POST("/sessions/:id/invitations", h.IssueInvitation)
	authed.PUT("/sessions/:id/recording", h.SaveRecording)
	authed.GET("/sessions/:id/recording", h.GetRecording)

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").
			Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		wsCtl.HandleSignal(ctx, c)
	})

	return r
}
