package delivery

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/domsius/email-assistant/internal/webhook/usecase"

	"github.com/gin-gonic/gin"
)

type WebhookHandler struct {
	webhookUsecase usecase.WebhookUsecase
}

func NewWebhookHandler(webhookUsecase usecase.WebhookUsecase) *WebhookHandler {
	return &WebhookHandler{
		webhookUsecase: webhookUsecase,
	}
}

// pubSubPushEnvelope is the wrapper Pub/Sub puts around a pushed message.
type pubSubPushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// HandleGmail receives Gmail watch notifications pushed by Pub/Sub. Anything
// structurally valid is answered 200 even when nothing is triggered; a non-2xx
// makes Pub/Sub redeliver the same hint forever.
func (h *WebhookHandler) HandleGmail(c *gin.Context) {
	var envelope pubSubPushEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push envelope"})
		return
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message data"})
		return
	}

	var notification usecase.GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil || notification.EmailAddress == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification payload"})
		return
	}

	h.webhookUsecase.HandleGmail(&notification)
	c.Status(http.StatusOK)
}

// graphNotificationBody is the change notification batch Graph delivers.
type graphNotificationBody struct {
	Value []struct {
		SubscriptionID string `json:"subscriptionId"`
		ClientState    string `json:"clientState"`
		ChangeType     string `json:"changeType"`
		Resource       string `json:"resource"`
	} `json:"value"`
}

// HandleGraph serves both halves of the Graph webhook contract: the
// validation handshake at subscription time (echo the token as plain text)
// and change notification delivery afterwards.
func (h *WebhookHandler) HandleGraph(c *gin.Context) {
	if token := c.Query("validationToken"); token != "" {
		c.String(http.StatusOK, token)
		return
	}

	var body graphNotificationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification body"})
		return
	}

	for _, n := range body.Value {
		h.webhookUsecase.HandleGraph(n.SubscriptionID, n.ClientState)
	}
	c.Status(http.StatusAccepted)
}
