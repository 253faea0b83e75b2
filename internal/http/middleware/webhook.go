package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/luxcrm/relay/internal/http/response"
	"github.com/luxcrm/relay/internal/pkg/logger"
	"github.com/luxcrm/relay/internal/utils"
)

const webhookSecretHeader = "X-Webhook-Secret"

// WebhookAuth guards webhook-facing routes. With no WEBHOOK_SECRET configured
// all requests pass, which is the local-development mode.
type WebhookAuth struct {
	log    *logger.Logger
	secret string
}

func NewWebhookAuth(log *logger.Logger) *WebhookAuth {
	secret := utils.GetEnv("WEBHOOK_SECRET", "", log)
	if secret == "" && log != nil {
		log.Warn("WEBHOOK_SECRET unset, webhook routes are unauthenticated")
	}
	return &WebhookAuth{log: log, secret: secret}
}

func (w *WebhookAuth) RequireSecret() gin.HandlerFunc {
	return func(c *gin.Context) {
		if w.secret == "" {
			c.Next()
			return
		}
		provided := c.GetHeader(webhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(w.secret)) != 1 {
			response.Error(c, http.StatusUnauthorized, "unauthorized", fmt.Errorf("invalid webhook secret"))
			c.Abort()
			return
		}
		c.Next()
	}
}
