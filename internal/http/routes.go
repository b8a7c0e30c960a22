package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/huenest/relay/internal/auth"
	"github.com/huenest/relay/internal/config"
	"github.com/huenest/relay/internal/store"
	"github.com/huenest/relay/internal/ws"
)

// SetupRoutes configures all application routes and middleware.
func SetupRoutes(router *gin.Engine, cfg config.Config, st store.Store, hub *ws.Hub, verifier *auth.Verifier) {

	// --- Dependencies ---
	env := &Env{Store: st, Hub: hub}

	// --- Middleware ---

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*" // Default to allow all for local dev
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Token"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		for {
			time.Sleep(10 * time.Minute)
			limiter.mu.Lock()
			for ip, v := range limiter.visitors {
				if v.Allow() {
					// Idle limiters refill; drop them to keep the map small.
					delete(limiter.visitors, ip)
				}
			}
			limiter.mu.Unlock()
		}
	}()

	// --- API Routes ---

	api := router.Group("/api")
	{
		api.GET("/nests/:id/messages", env.GetNestMessages)

		admin := api.Group("/", AdminAuthMiddleware(cfg.AdminToken))
		{
			admin.DELETE("/messages/:id", env.DeleteMessage)
			admin.POST("/nests/:id/bans", RateLimitMiddleware(limiter), env.BanMember)
			admin.DELETE("/nests/:id/members/:userID", env.KickMember)
		}
	}

	router.GET("/healthz", env.Healthz)

	// --- WebSocket Route ---

	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(hub, verifier, c.Writer, c.Request)
	})
}
