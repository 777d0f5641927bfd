package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/dto"
	"github.com/domsius/email-assistant/internal/account/repository"
	msgrepo "github.com/domsius/email-assistant/internal/message/repository"
	"github.com/domsius/email-assistant/internal/provider"
	syncusecase "github.com/domsius/email-assistant/internal/sync/usecase"
	"github.com/domsius/email-assistant/pkg/blob"
	"github.com/domsius/email-assistant/pkg/config"
	"github.com/domsius/email-assistant/pkg/crypto"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

var gmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/gmail.send",
	"https://www.googleapis.com/auth/userinfo.email",
}

var outlookScopes = []string{
	"offline_access",
	"User.Read",
	"Mail.Read",
	"Mail.Send",
}

type accountUsecase struct {
	accounts     repository.AccountRepository
	runs         repository.SyncRunRepository
	messages     msgrepo.MessageRepository
	blobs        *blob.Store
	tokens       *syncusecase.TokenManager
	watches      *syncusecase.WatchManager
	orchestrator *syncusecase.Orchestrator
	clients      map[domain.ProviderKind]provider.Client
	config       *config.Config
}

func NewAccountUsecase(
	accounts repository.AccountRepository,
	runs repository.SyncRunRepository,
	messages msgrepo.MessageRepository,
	blobs *blob.Store,
	tokens *syncusecase.TokenManager,
	watches *syncusecase.WatchManager,
	orchestrator *syncusecase.Orchestrator,
	clients map[domain.ProviderKind]provider.Client,
	cfg *config.Config,
) AccountUsecase {
	return &accountUsecase{
		accounts:     accounts,
		runs:         runs,
		messages:     messages,
		blobs:        blobs,
		tokens:       tokens,
		watches:      watches,
		orchestrator: orchestrator,
		clients:      clients,
		config:       cfg,
	}
}

func (u *accountUsecase) oauthConfig(kind domain.ProviderKind) (*oauth2.Config, error) {
	switch kind {
	case domain.ProviderGmail:
		return &oauth2.Config{
			ClientID:     u.config.GoogleClientID,
			ClientSecret: u.config.GoogleClientSecret,
			RedirectURL:  u.config.GoogleRedirectURI,
			Scopes:       gmailScopes,
			Endpoint:     google.Endpoint,
		}, nil
	case domain.ProviderOutlook:
		return &oauth2.Config{
			ClientID:     u.config.MicrosoftClientID,
			ClientSecret: u.config.MicrosoftClientSecret,
			RedirectURL:  u.config.MicrosoftRedirectURI,
			Scopes:       outlookScopes,
			Endpoint:     microsoft.AzureADEndpoint(u.config.MicrosoftTenantID),
		}, nil
	}
	return nil, fmt.Errorf("provider %s does not use OAuth", kind)
}

func (u *accountUsecase) BeginOAuthConnect(userID string, kind domain.ProviderKind) (string, error) {
	conf, err := u.oauthConfig(kind)
	if err != nil {
		return "", err
	}

	// The pending row binds the consent flow to this user; the mailbox
	// email is only known after the callback.
	account := &domain.Account{
		ID:         uuid.New().String(),
		UserID:     userID,
		Provider:   kind,
		OAuthState: uuid.New().String(),
	}
	if err := u.accounts.Create(account); err != nil {
		return "", fmt.Errorf("failed to create pending account: %w", err)
	}

	url := conf.AuthCodeURL(account.OAuthState, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	return url, nil
}

func (u *accountUsecase) CompleteOAuthConnect(ctx context.Context, state, code string) (*domain.Account, error) {
	pending, err := u.accounts.FindByOAuthState(state)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, errors.New("unknown or expired OAuth state")
	}

	conf, err := u.oauthConfig(pending.Provider)
	if err != nil {
		return nil, err
	}
	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	cred := provider.Credential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}
	client := u.clients[pending.Provider]
	profile, err := client.Authenticate(ctx, cred, func(*oauth2.Token) error { return nil })
	if err != nil {
		return nil, fmt.Errorf("credential validation failed: %w", err)
	}

	// Reconnecting a mailbox that already exists updates its credential
	// instead of creating a second account.
	account := pending
	if existing, err := u.accounts.FindByProviderEmail(pending.Provider, profile.Email); err == nil && existing != nil && existing.ID != pending.ID {
		account = existing
		if err := u.accounts.Delete(pending.ID); err != nil {
			log.Printf("[Account] Failed to remove pending account %s: %v", pending.ID, err)
		}
	}

	if account.AccessToken, err = crypto.Encrypt(token.AccessToken, u.config.EncryptionKey); err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	if account.RefreshToken, err = crypto.Encrypt(token.RefreshToken, u.config.EncryptionKey); err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	account.TokenExpiry = token.Expiry
	account.Email = profile.Email
	account.NeedsReauth = false
	account.OAuthState = ""
	if err := u.accounts.Update(account); err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}

	if err := u.watches.EnsureWatch(ctx, account); err != nil {
		// Polling still covers the account; push is an optimization.
		log.Printf("[Account] Failed to register watch for account %s: %v", account.ID, err)
	}

	u.orchestrator.Enqueue(account.ID, "initial")
	log.Printf("[Account] Connected %s account %s for user %s", account.Provider, account.Email, account.UserID)
	return account, nil
}

func (u *accountUsecase) ConnectIMAP(ctx context.Context, userID string, req *dto.ConnectIMAPRequest) (*domain.Account, error) {
	cred := provider.Credential{
		Host:     req.Server,
		Port:     req.Port,
		Username: req.Email,
		Password: req.Password,
	}
	client := u.clients[domain.ProviderIMAP]
	if _, err := client.Authenticate(ctx, cred, nil); err != nil {
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	if existing, err := u.accounts.FindByProviderEmail(domain.ProviderIMAP, req.Email); err == nil && existing != nil {
		return nil, errors.New("this mailbox is already connected")
	}

	encPassword, err := crypto.Encrypt(req.Password, u.config.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password: %w", err)
	}

	account := &domain.Account{
		ID:           uuid.New().String(),
		UserID:       userID,
		Email:        req.Email,
		Provider:     domain.ProviderIMAP,
		ImapServer:   req.Server,
		ImapPort:     req.Port,
		ImapPassword: encPassword,
	}
	if err := u.accounts.Create(account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	u.orchestrator.Enqueue(account.ID, "initial")
	log.Printf("[Account] Connected IMAP account %s for user %s", account.Email, userID)
	return account, nil
}

func (u *accountUsecase) ListAccounts(userID string) ([]*domain.Account, error) {
	return u.accounts.ListByUser(userID)
}

func (u *accountUsecase) GetAccount(id string) (*domain.Account, error) {
	return u.accounts.FindByID(id)
}

func (u *accountUsecase) Disconnect(ctx context.Context, accountID string) error {
	account, err := u.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.New("account not found")
	}

	u.watches.StopWatch(ctx, account)

	if err := u.messages.DeleteByAccount(accountID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if err := u.blobs.PurgeAccount(accountID); err != nil {
		log.Printf("[Account] Failed to purge attachment blobs for account %s: %v", accountID, err)
	}
	if err := u.accounts.Delete(accountID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	log.Printf("[Account] Disconnected account %s (%s)", accountID, account.Email)
	return nil
}

func (u *accountUsecase) SendMessage(ctx context.Context, accountID string, req *dto.SendMessageRequest) error {
	account, err := u.accounts.FindByID(accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return errors.New("account not found")
	}

	cred, err := u.tokens.EnsureValid(ctx, account)
	if err != nil {
		return err
	}

	msg := &provider.OutgoingMessage{
		FromAddress: account.Email,
		To:          req.To,
		Cc:          req.Cc,
		Bcc:         req.Bcc,
		Subject:     req.Subject,
		BodyHTML:    req.BodyHTML,
	}
	client := u.clients[account.Provider]
	return client.SendMessage(ctx, cred, msg, u.tokens.PersistCallback(account.ID))
}

func (u *accountUsecase) SyncHistory(accountID string, limit int) ([]*domain.SyncRun, error) {
	return u.runs.ListByAccount(accountID, limit)
}
