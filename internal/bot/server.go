package bot

import (
	"crypto/subtle"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HealthRoute  = "/health"
	WebhookRoute = "/webhook/:secret"
)

// NewRouter serves the health check and, when a secret is configured, the Telegram webhook.
func NewRouter(deps BotDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "slide bot %s", deps.Version)
	})
	r.GET(HealthRoute, healthHandler(deps))
	if deps.Config.HTTP.WebhookSecret != "" {
		r.POST(WebhookRoute, webhookHandler(deps))
	}
	return r
}

func healthHandler(deps BotDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := deps.Store.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			deps.Logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": deps.Version})
	}
}

func webhookHandler(deps BotDeps) gin.HandlerFunc {
	secret := []byte(deps.Config.HTTP.WebhookSecret)
	return func(c *gin.Context) {
		if subtle.ConstantTimeCompare([]byte(c.Param("secret")), secret) != 1 {
			c.Status(http.StatusNotFound)
			return
		}
		var update tgbotapi.Update
		if err := c.ShouldBindJSON(&update); err != nil {
			deps.Logger.Warn("Malformed webhook update", zap.Error(err))
			c.Status(http.StatusBadRequest)
			return
		}
		deps.Tasks.Add(1)
		go func() {
			defer deps.Tasks.Done()
			HandleUpdate(update, deps)
		}()
		c.Status(http.StatusOK)
	}
}
