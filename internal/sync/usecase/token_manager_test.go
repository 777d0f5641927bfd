package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/pkg/crypto"

	"golang.org/x/oauth2"
)

func TestEnsureValidFreshTokenNoRefresh(t *testing.T) {
	account := testAccount("acc1")
	accounts := newFakeAccountRepo(account)
	tokens := NewTokenManager(accounts, testConfig())

	cred, err := tokens.EnsureValid(context.Background(), account)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if cred.AccessToken != "access-token" {
		t.Errorf("access token = %q, want decrypted access-token", cred.AccessToken)
	}
	if cred.RefreshToken != "refresh-token" {
		t.Errorf("refresh token = %q, want decrypted refresh-token", cred.RefreshToken)
	}

	// Nothing was refreshed, so the stored credential is untouched.
	if got := accounts.get("acc1").AccessToken; got != account.AccessToken {
		t.Error("stored access token changed without a refresh")
	}
}

func TestEnsureValidNeedsReauthShortCircuits(t *testing.T) {
	account := testAccount("acc1")
	account.NeedsReauth = true
	tokens := NewTokenManager(newFakeAccountRepo(account), testConfig())

	_, err := tokens.EnsureValid(context.Background(), account)
	if !errors.Is(err, ErrNeedsReauth) {
		t.Fatalf("err = %v, want ErrNeedsReauth", err)
	}
}

func TestEnsureValidIMAPDecryptsPassword(t *testing.T) {
	encrypted, err := crypto.Encrypt("imap-secret", testEncryptionKey)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	account := &domain.Account{
		ID:           "imap1",
		Email:        "user@mail.example.com",
		Provider:     domain.ProviderIMAP,
		ImapServer:   "mail.example.com",
		ImapPort:     993,
		ImapPassword: encrypted,
	}
	tokens := NewTokenManager(newFakeAccountRepo(account), testConfig())

	cred, err := tokens.EnsureValid(context.Background(), account)
	if err != nil {
		t.Fatalf("EnsureValid: %v", err)
	}
	if cred.Password != "imap-secret" {
		t.Errorf("password = %q, want decrypted imap-secret", cred.Password)
	}
	if cred.Host != "mail.example.com" || cred.Port != 993 {
		t.Errorf("host:port = %s:%d, want mail.example.com:993", cred.Host, cred.Port)
	}
	if cred.Username != "user@mail.example.com" {
		t.Errorf("username = %q, want account email", cred.Username)
	}
}

func TestPersistCallbackStoresEncrypted(t *testing.T) {
	account := testAccount("acc1")
	accounts := newFakeAccountRepo(account)
	tokens := NewTokenManager(accounts, testConfig())

	cb := tokens.PersistCallback("acc1")
	expiry := time.Now().Add(time.Hour)
	if err := cb(&oauth2.Token{AccessToken: "new-access", RefreshToken: "new-refresh", Expiry: expiry}); err != nil {
		t.Fatalf("persist callback: %v", err)
	}

	stored := accounts.get("acc1")
	if stored.AccessToken == "new-access" {
		t.Error("access token stored in plaintext")
	}
	decrypted, err := crypto.Decrypt(stored.AccessToken, testEncryptionKey)
	if err != nil {
		t.Fatalf("decrypt stored token: %v", err)
	}
	if decrypted != "new-access" {
		t.Errorf("stored access token decrypts to %q, want new-access", decrypted)
	}
	if !stored.TokenExpiry.Equal(expiry) {
		t.Errorf("stored expiry = %v, want %v", stored.TokenExpiry, expiry)
	}
}

func TestPersistCallbackKeepsOldRefreshToken(t *testing.T) {
	account := testAccount("acc1")
	accounts := newFakeAccountRepo(account)
	tokens := NewTokenManager(accounts, testConfig())

	// Refresh responses routinely omit the refresh token.
	cb := tokens.PersistCallback("acc1")
	if err := cb(&oauth2.Token{AccessToken: "new-access", Expiry: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("persist callback: %v", err)
	}

	if got := accounts.get("acc1").RefreshToken; got != account.RefreshToken {
		t.Error("empty refresh token on refresh must keep the stored one")
	}
}
