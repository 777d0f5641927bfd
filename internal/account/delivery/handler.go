package delivery

import (
	"net/http"
	"strconv"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/dto"
	"github.com/domsius/email-assistant/internal/account/usecase"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountUsecase usecase.AccountUsecase
}

func NewAccountHandler(accountUsecase usecase.AccountUsecase) *AccountHandler {
	return &AccountHandler{
		accountUsecase: accountUsecase,
	}
}

func (h *AccountHandler) Connect(c *gin.Context) {
	userID := c.GetString("userID")
	kind := domain.ProviderKind(c.Param("provider"))
	if kind != domain.ProviderGmail && kind != domain.ProviderOutlook {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	authURL, err := h.accountUsecase.BeginOAuthConnect(userID, kind)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.ConnectResponse{AuthURL: authURL})
}

// OAuthCallback is hit by the provider after consent; it carries no bearer
// token, the state parameter is the binding to the pending connection.
func (h *AccountHandler) OAuthCallback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing state or code"})
		return
	}

	account, err := h.accountUsecase.CompleteOAuthConnect(c.Request.Context(), state, code)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, account)
}

func (h *AccountHandler) ConnectIMAP(c *gin.Context) {
	userID := c.GetString("userID")

	var req dto.ConnectIMAPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accountUsecase.ConnectIMAP(c.Request.Context(), userID, &req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, account)
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	userID := c.GetString("userID")
	accounts, err := h.accountUsecase.ListAccounts(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (h *AccountHandler) Disconnect(c *gin.Context) {
	id := c.Param("id")
	if err := h.accountUsecase.Disconnect(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "account disconnected"})
}

func (h *AccountHandler) SendMessage(c *gin.Context) {
	id := c.Param("id")

	var req dto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.accountUsecase.SendMessage(c.Request.Context(), id, &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message sent"})
}

func (h *AccountHandler) SyncHistory(c *gin.Context) {
	id := c.Param("id")

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.accountUsecase.SyncHistory(id, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
