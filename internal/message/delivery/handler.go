package delivery

import (
	"net/http"
	"strconv"

	"github.com/domsius/email-assistant/internal/message/usecase"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageUsecase usecase.MessageUsecase
}

func NewMessageHandler(messageUsecase usecase.MessageUsecase) *MessageHandler {
	return &MessageHandler{
		messageUsecase: messageUsecase,
	}
}

func (h *MessageHandler) ListMessages(c *gin.Context) {
	accountID := c.Param("id")

	limit := 20
	offset := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	messages, total, err := h.messageUsecase.ListMessages(accountID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"limit":    limit,
		"offset":   offset,
		"total":    total,
	})
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.messageUsecase.GetMessage(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if msg == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *MessageHandler) DownloadAttachment(c *gin.Context) {
	att, content, err := h.messageUsecase.GetAttachmentContent(c.Param("id"), c.Param("attachmentId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	contentType := att.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", "attachment; filename=\""+att.Filename+"\"")
	c.Data(http.StatusOK, contentType, content)
}
