package usecase

import (
	"context"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/dto"
)

// AccountUsecase manages the lifecycle of connected mailboxes.
type AccountUsecase interface {
	// BeginOAuthConnect creates a pending connection and returns the
	// provider consent URL the user must visit.
	BeginOAuthConnect(userID string, provider domain.ProviderKind) (string, error)
	// CompleteOAuthConnect finishes the consent flow: exchanges the code,
	// stores the credential, registers the push channel, and enqueues the
	// initial sync.
	CompleteOAuthConnect(ctx context.Context, state, code string) (*domain.Account, error)
	ConnectIMAP(ctx context.Context, userID string, req *dto.ConnectIMAPRequest) (*domain.Account, error)
	ListAccounts(userID string) ([]*domain.Account, error)
	GetAccount(id string) (*domain.Account, error)
	// Disconnect tears down the push channel and removes the account with
	// all its messages and stored attachment content.
	Disconnect(ctx context.Context, accountID string) error
	SendMessage(ctx context.Context, accountID string, req *dto.SendMessageRequest) error
	SyncHistory(accountID string, limit int) ([]*domain.SyncRun, error)
}
