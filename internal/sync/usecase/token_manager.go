package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	"github.com/domsius/email-assistant/internal/provider"
	"github.com/domsius/email-assistant/pkg/config"
	"github.com/domsius/email-assistant/pkg/crypto"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

// ErrNeedsReauth means the stored refresh credential is dead and only a new
// user consent flow can revive the account. Runs must not retry through it.
var ErrNeedsReauth = errors.New("account requires re-authorization")

// TokenManager turns stored, encrypted credentials into usable ones. A token
// within the refresh margin of expiry is refreshed up front so it cannot die
// mid-run, and every refreshed token is persisted before it is used.
type TokenManager struct {
	accounts      repository.AccountRepository
	encryptionKey string
	margin        time.Duration
	oauthConfigs  map[domain.ProviderKind]*oauth2.Config
}

func NewTokenManager(accounts repository.AccountRepository, cfg *config.Config) *TokenManager {
	return &TokenManager{
		accounts:      accounts,
		encryptionKey: cfg.EncryptionKey,
		margin:        cfg.TokenRefreshMargin,
		oauthConfigs: map[domain.ProviderKind]*oauth2.Config{
			domain.ProviderGmail: {
				ClientID:     cfg.GoogleClientID,
				ClientSecret: cfg.GoogleClientSecret,
				Endpoint:     google.Endpoint,
			},
			domain.ProviderOutlook: {
				ClientID:     cfg.MicrosoftClientID,
				ClientSecret: cfg.MicrosoftClientSecret,
				Endpoint:     microsoft.AzureADEndpoint(cfg.MicrosoftTenantID),
			},
		},
	}
}

// EnsureValid returns a decrypted credential good for at least the refresh
// margin. For OAuth accounts an expiring token is refreshed and the new
// credential is persisted before this returns.
func (m *TokenManager) EnsureValid(ctx context.Context, account *domain.Account) (provider.Credential, error) {
	if account.Provider == domain.ProviderIMAP {
		password, err := crypto.Decrypt(account.ImapPassword, m.encryptionKey)
		if err != nil {
			return provider.Credential{}, fmt.Errorf("failed to decrypt IMAP password: %w", err)
		}
		return provider.Credential{
			Host:     account.ImapServer,
			Port:     account.ImapPort,
			Username: account.Email,
			Password: password,
		}, nil
	}

	if account.NeedsReauth {
		return provider.Credential{}, fmt.Errorf("%w: account %s", ErrNeedsReauth, account.ID)
	}

	accessToken, err := crypto.Decrypt(account.AccessToken, m.encryptionKey)
	if err != nil {
		return provider.Credential{}, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := crypto.Decrypt(account.RefreshToken, m.encryptionKey)
	if err != nil {
		return provider.Credential{}, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	cred := provider.Credential{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       account.TokenExpiry,
	}
	if time.Until(account.TokenExpiry) > m.margin {
		return cred, nil
	}

	conf, ok := m.oauthConfigs[account.Provider]
	if !ok {
		return provider.Credential{}, fmt.Errorf("no OAuth config for provider %s", account.Provider)
	}

	log.Printf("[Token] Refreshing token for account %s (expires %s)", account.ID, account.TokenExpiry.Format(time.RFC3339))
	token, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		if isInvalidGrant(err) {
			m.markNeedsReauth(account)
			return provider.Credential{}, fmt.Errorf("%w: refresh rejected for account %s: %v", ErrNeedsReauth, account.ID, err)
		}
		return provider.Credential{}, fmt.Errorf("%w: token refresh failed: %v", provider.ErrTransient, err)
	}

	if err := m.persist(account.ID, token, refreshToken); err != nil {
		// A token that was not persisted must not be used; a crash after
		// using it would strand the account on the old, revoked credential.
		return provider.Credential{}, fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	cred.AccessToken = token.AccessToken
	cred.Expiry = token.Expiry
	if token.RefreshToken != "" {
		cred.RefreshToken = token.RefreshToken
	}
	return cred, nil
}

// PersistCallback returns the token update hook handed to provider clients,
// so refreshes taken inside a client call are stored the same way.
func (m *TokenManager) PersistCallback(accountID string) provider.TokenUpdateFunc {
	return func(token *oauth2.Token) error {
		return m.persist(accountID, token, "")
	}
}

func (m *TokenManager) persist(accountID string, token *oauth2.Token, fallbackRefresh string) error {
	refresh := token.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}

	encAccess, err := crypto.Encrypt(token.AccessToken, m.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh := ""
	if refresh != "" {
		if encRefresh, err = crypto.Encrypt(refresh, m.encryptionKey); err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
	}
	return m.accounts.SaveTokens(accountID, encAccess, encRefresh, token.Expiry)
}

func (m *TokenManager) markNeedsReauth(account *domain.Account) {
	account.NeedsReauth = true
	if err := m.accounts.Update(account); err != nil {
		log.Printf("[Token] Failed to flag account %s for re-auth: %v", account.ID, err)
	}
}

// isInvalidGrant detects a permanently dead refresh token. Anything else from
// the token endpoint is treated as transient.
func isInvalidGrant(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if !errors.As(err, &retrieveErr) {
		return false
	}
	if retrieveErr.ErrorCode == "invalid_grant" {
		return true
	}
	return retrieveErr.Response != nil && retrieveErr.Response.StatusCode == 401
}
