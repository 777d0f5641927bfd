package delivery

import (
	"net/http"

	"github.com/domsius/email-assistant/internal/account/repository"
	"github.com/domsius/email-assistant/internal/sync/usecase"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	accounts     repository.AccountRepository
	orchestrator *usecase.Orchestrator
}

func NewSyncHandler(accounts repository.AccountRepository, orchestrator *usecase.Orchestrator) *SyncHandler {
	return &SyncHandler{
		accounts:     accounts,
		orchestrator: orchestrator,
	}
}

type triggerSyncRequest struct {
	AccountID string `json:"account_id" binding:"required"`
}

// TriggerSync enqueues a manual sync. Returns 202: the run happens on the
// worker pool and progress is polled separately. A trigger for an account
// already mid-run is accepted and collapses into a no-op.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	var req triggerSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	account, err := h.accounts.FindByID(req.AccountID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	if !h.orchestrator.Enqueue(account.ID, "manual") {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sync queue is full, try again later"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync started"})
}

func (h *SyncHandler) Progress(c *gin.Context) {
	account, err := h.accounts.FindByID(c.Param("accountId"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if account == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id":   account.ID,
		"status":       account.SyncState,
		"processed":    account.SyncProcessed,
		"total":        account.SyncTotal,
		"error":        account.SyncError,
		"needs_reauth": account.NeedsReauth,
		"started_at":   account.SyncStartedAt,
		"completed_at": account.SyncCompletedAt,
	})
}
