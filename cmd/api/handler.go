package api

import (
	accountDelivery "github.com/domsius/email-assistant/internal/account/delivery"
	accountUsecasePkg "github.com/domsius/email-assistant/internal/account/usecase"
	messageDelivery "github.com/domsius/email-assistant/internal/message/delivery"
	messageUsecasePkg "github.com/domsius/email-assistant/internal/message/usecase"
	"github.com/domsius/email-assistant/internal/account/repository"
	syncDelivery "github.com/domsius/email-assistant/internal/sync/delivery"
	syncUsecasePkg "github.com/domsius/email-assistant/internal/sync/usecase"
	webhookDelivery "github.com/domsius/email-assistant/internal/webhook/delivery"
	webhookUsecasePkg "github.com/domsius/email-assistant/internal/webhook/usecase"
	"github.com/domsius/email-assistant/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	accountHandler *accountDelivery.AccountHandler
	messageHandler *messageDelivery.MessageHandler
	syncHandler    *syncDelivery.SyncHandler
	webhookHandler *webhookDelivery.WebhookHandler
	config         *config.Config
}

func NewHandler(
	accountUc accountUsecasePkg.AccountUsecase,
	messageUc messageUsecasePkg.MessageUsecase,
	webhookUc webhookUsecasePkg.WebhookUsecase,
	accounts repository.AccountRepository,
	orchestrator *syncUsecasePkg.Orchestrator,
	cfg *config.Config,
) *Handler {
	return &Handler{
		accountHandler: accountDelivery.NewAccountHandler(accountUc),
		messageHandler: messageDelivery.NewMessageHandler(messageUc),
		syncHandler:    syncDelivery.NewSyncHandler(accounts, orchestrator),
		webhookHandler: webhookDelivery.NewWebhookHandler(webhookUc),
		config:         cfg,
	}
}

func (h *Handler) Start(addr string) error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h.accountHandler, h.messageHandler, h.syncHandler, h.webhookHandler, h.config)

	return r.Run(addr)
}
