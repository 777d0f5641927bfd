package api

import (
	"net/http"

	accountDelivery "github.com/domsius/email-assistant/internal/account/delivery"
	messageDelivery "github.com/domsius/email-assistant/internal/message/delivery"
	syncDelivery "github.com/domsius/email-assistant/internal/sync/delivery"
	webhookDelivery "github.com/domsius/email-assistant/internal/webhook/delivery"
	"github.com/domsius/email-assistant/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	accountHandler *accountDelivery.AccountHandler,
	messageHandler *messageDelivery.MessageHandler,
	syncHandler *syncDelivery.SyncHandler,
	webhookHandler *webhookDelivery.WebhookHandler,
	cfg *config.Config,
) {
	// Provider callbacks carry no bearer token; each authenticates its own
	// way (OAuth state, Pub/Sub envelope, Graph client state).
	r.GET("/oauth/callback", accountHandler.OAuthCallback)
	webhooks := r.Group("/webhooks")
	{
		webhooks.POST("/gmail", webhookHandler.HandleGmail)
		webhooks.POST("/outlook", webhookHandler.HandleGraph)
	}

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Account routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(accountDelivery.AuthMiddleware(cfg.JWTSecret))
		{
			accounts.GET("", accountHandler.ListAccounts)
			accounts.POST("/connect/:provider", accountHandler.Connect)
			accounts.POST("/connect-imap", accountHandler.ConnectIMAP)
			accounts.DELETE("/:id", accountHandler.Disconnect)
			accounts.POST("/:id/send", accountHandler.SendMessage)
			accounts.GET("/:id/sync-runs", accountHandler.SyncHistory)
			accounts.GET("/:id/messages", messageHandler.ListMessages)
		}

		// Message routes (protected)
		messages := api.Group("/messages")
		messages.Use(accountDelivery.AuthMiddleware(cfg.JWTSecret))
		{
			messages.GET("/:id", messageHandler.GetMessage)
			messages.GET("/:id/attachments/:attachmentId", messageHandler.DownloadAttachment)
		}

		// Sync routes (protected)
		sync := api.Group("/sync")
		sync.Use(accountDelivery.AuthMiddleware(cfg.JWTSecret))
		{
			sync.POST("", syncHandler.TriggerSync)
			sync.GET("/progress/:accountId", syncHandler.Progress)
		}
	}
}
