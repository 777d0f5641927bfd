package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/domsius/email-assistant/internal/account/domain"
	"github.com/domsius/email-assistant/internal/account/repository"
	msgdomain "github.com/domsius/email-assistant/internal/message/domain"
	"github.com/domsius/email-assistant/internal/provider"

	"gorm.io/gorm"
)

// fakeAccountRepo mirrors the claim semantics of the real repository: one
// winner per lease window, expired leases reclaimable.
type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account

	claims   int
	rejects  int
	cursorAt []string
}

func newFakeAccountRepo(accounts ...*domain.Account) *fakeAccountRepo {
	r := &fakeAccountRepo{accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		copied := *a
		r.accounts[a.ID] = &copied
	}
	return r
}

func (r *fakeAccountRepo) get(id string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		copied := *a
		return &copied
	}
	return nil
}

func (r *fakeAccountRepo) Create(account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *account
	r.accounts[account.ID] = &copied
	return nil
}

func (r *fakeAccountRepo) Update(account *domain.Account) error {
	return r.Create(account)
}

func (r *fakeAccountRepo) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accounts, id)
	return nil
}

func (r *fakeAccountRepo) FindByID(id string) (*domain.Account, error) {
	return r.get(id), nil
}

func (r *fakeAccountRepo) FindByOAuthState(state string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.OAuthState == state {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) FindByProviderEmail(kind domain.ProviderKind, email string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Provider == kind && a.Email == email {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeAccountRepo) ListByUser(userID string) ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if a.UserID == userID {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ListSyncable() ([]*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Account
	for _, a := range r.accounts {
		if !a.NeedsReauth && a.Email != "" {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ClaimForSync(id string, lease time.Duration) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s not found", id)
	}
	now := time.Now()
	if a.SyncState == domain.SyncStateSyncing && a.LeaseExpiresAt != nil && a.LeaseExpiresAt.After(now) {
		r.rejects++
		return nil, repository.ErrAlreadySyncing
	}
	expires := now.Add(lease)
	a.SyncState = domain.SyncStateSyncing
	a.SyncProcessed = 0
	a.SyncTotal = 0
	a.SyncError = ""
	a.SyncStartedAt = &now
	a.SyncCompletedAt = nil
	a.LeaseExpiresAt = &expires
	r.claims++
	copied := *a
	return &copied, nil
}

func (r *fakeAccountRepo) UpdateProgress(id string, processed, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.SyncProcessed = processed
		a.SyncTotal = total
	}
	return nil
}

func (r *fakeAccountRepo) AdvanceCursor(id string, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.SyncCursor = cursor
		r.cursorAt = append(r.cursorAt, cursor)
	}
	return nil
}

func (r *fakeAccountRepo) CompleteSync(id string, cursor string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		now := time.Now()
		a.SyncState = domain.SyncStateCompleted
		a.SyncError = ""
		a.SyncCompletedAt = &now
		a.LeaseExpiresAt = nil
		if cursor != "" {
			a.SyncCursor = cursor
		}
	}
	return nil
}

func (r *fakeAccountRepo) FailSync(id string, message string, needsReauth bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		now := time.Now()
		a.SyncState = domain.SyncStateFailed
		a.SyncError = message
		a.SyncCompletedAt = &now
		a.LeaseExpiresAt = nil
		a.NeedsReauth = needsReauth
	}
	return nil
}

func (r *fakeAccountRepo) SaveTokens(id, accessToken, refreshToken string, expiry time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.accounts[id]; ok {
		a.AccessToken = accessToken
		if refreshToken != "" {
			a.RefreshToken = refreshToken
		}
		a.TokenExpiry = expiry
		a.NeedsReauth = false
	}
	return nil
}

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[string]*domain.SyncRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[string]*domain.SyncRun)}
}

func (r *fakeRunRepo) Create(run *domain.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *run
	r.runs[run.ID] = &copied
	return nil
}

func (r *fakeRunRepo) Finish(id string, outcome string, processed, skipped int, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[id]; ok {
		now := time.Now()
		run.Outcome = outcome
		run.Processed = processed
		run.Skipped = skipped
		run.Error = errMsg
		run.CompletedAt = &now
	}
	return nil
}

func (r *fakeRunRepo) ListByAccount(accountID string, limit int) ([]*domain.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SyncRun
	for _, run := range r.runs {
		if run.AccountID == accountID {
			copied := *run
			out = append(out, &copied)
		}
	}
	return out, nil
}

// fakeMessageRepo enforces the (account, native id) unique index the way the
// translated postgres driver does, by returning gorm.ErrDuplicatedKey.
type fakeMessageRepo struct {
	mu          sync.Mutex
	messages    map[string]*msgdomain.Message
	attachments map[string][]*msgdomain.Attachment
	flagUpdates int
	softDeletes int
	attUpdates  int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{
		messages:    make(map[string]*msgdomain.Message),
		attachments: make(map[string][]*msgdomain.Attachment),
	}
}

func msgKey(accountID, nativeID string) string {
	return accountID + "/" + nativeID
}

func (r *fakeMessageRepo) Insert(msg *msgdomain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := msgKey(msg.AccountID, msg.ProviderMessageID)
	if _, exists := r.messages[key]; exists {
		return gorm.ErrDuplicatedKey
	}
	copied := *msg
	r.messages[key] = &copied
	return nil
}

func (r *fakeMessageRepo) UpdateFlags(accountID, providerMessageID string, read, starred, archived, spam bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[msgKey(accountID, providerMessageID)]; ok {
		msg.IsRead = read
		msg.IsStarred = starred
		msg.IsArchived = archived
		msg.IsSpam = spam
	}
	r.flagUpdates++
	return nil
}

func (r *fakeMessageRepo) SoftDelete(accountID, providerMessageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, msgKey(accountID, providerMessageID))
	r.softDeletes++
	return nil
}

func (r *fakeMessageRepo) FindByID(id string) (*msgdomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			copied := *msg
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeMessageRepo) FindByNativeID(accountID, providerMessageID string) (*msgdomain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[msgKey(accountID, providerMessageID)]; ok {
		copied := *msg
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeMessageRepo) ListByAccount(accountID string, limit, offset int) ([]*msgdomain.Message, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*msgdomain.Message
	for _, msg := range r.messages {
		if msg.AccountID == accountID {
			copied := *msg
			out = append(out, &copied)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeMessageRepo) CountByContentHash(accountID, contentHash string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, msg := range r.messages {
		if msg.AccountID == accountID && msg.ContentHash == contentHash {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) CountByAccount(accountID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, msg := range r.messages {
		if msg.AccountID == accountID {
			count++
		}
	}
	return count, nil
}

func (r *fakeMessageRepo) DeleteByAccount(accountID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, msg := range r.messages {
		if msg.AccountID == accountID {
			delete(r.messages, key)
		}
	}
	return nil
}

func (r *fakeMessageRepo) CreateAttachment(att *msgdomain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *att
	r.attachments[att.MessageID] = append(r.attachments[att.MessageID], &copied)
	return nil
}

func (r *fakeMessageRepo) UpdateAttachment(att *msgdomain.Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attUpdates++
	for i, existing := range r.attachments[att.MessageID] {
		if existing.ID == att.ID {
			copied := *att
			r.attachments[att.MessageID][i] = &copied
			return nil
		}
	}
	return fmt.Errorf("attachment %s not found", att.ID)
}

func (r *fakeMessageRepo) AttachmentsByMessage(messageID string) ([]*msgdomain.Attachment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachments[messageID], nil
}

// fakeProviderClient scripts discovery and fetch behavior per test.
type fakeProviderClient struct {
	mu            sync.Mutex
	listFn        func(opts provider.ListOptions) (*provider.ChangePage, error)
	fetchFn       func(nativeID string) (*provider.RawMessage, error)
	attachmentFn  func(nativeID, attachmentID string) ([]byte, error)
	profileCursor string
	listCalls     int
	fetchCalls    int
	authCalls     int
}

func (c *fakeProviderClient) Authenticate(ctx context.Context, cred provider.Credential, onTokenRefresh provider.TokenUpdateFunc) (*provider.Profile, error) {
	c.mu.Lock()
	c.authCalls++
	c.mu.Unlock()
	return &provider.Profile{Email: cred.Username, Cursor: c.profileCursor}, nil
}

func (c *fakeProviderClient) ListChanges(ctx context.Context, cred provider.Credential, opts provider.ListOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.ChangePage, error) {
	c.mu.Lock()
	c.listCalls++
	c.mu.Unlock()
	return c.listFn(opts)
}

func (c *fakeProviderClient) FetchMessage(ctx context.Context, cred provider.Credential, nativeID string, onTokenRefresh provider.TokenUpdateFunc) (*provider.RawMessage, error) {
	c.mu.Lock()
	c.fetchCalls++
	c.mu.Unlock()
	if c.fetchFn != nil {
		return c.fetchFn(nativeID)
	}
	return testRawMessage(nativeID), nil
}

func (c *fakeProviderClient) FetchAttachment(ctx context.Context, cred provider.Credential, nativeID, attachmentID string, onTokenRefresh provider.TokenUpdateFunc) ([]byte, error) {
	if c.attachmentFn != nil {
		return c.attachmentFn(nativeID, attachmentID)
	}
	return []byte("attachment-content"), nil
}

func (c *fakeProviderClient) RegisterWatch(ctx context.Context, cred provider.Credential, opts provider.WatchOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.WatchHandle, error) {
	return &provider.WatchHandle{SubscriptionID: "fake-sub", Expiration: time.Now().Add(time.Hour)}, nil
}

func (c *fakeProviderClient) StopWatch(ctx context.Context, cred provider.Credential, subscriptionID string, onTokenRefresh provider.TokenUpdateFunc) error {
	return nil
}

func (c *fakeProviderClient) SendMessage(ctx context.Context, cred provider.Credential, msg *provider.OutgoingMessage, onTokenRefresh provider.TokenUpdateFunc) error {
	return nil
}

func testRawMessage(nativeID string) *provider.RawMessage {
	return &provider.RawMessage{
		NativeID:   nativeID,
		Subject:    "subject " + nativeID,
		From:       provider.Address{Name: "Sender", Address: "sender@example.com"},
		To:         []provider.Address{{Address: "me@example.com"}},
		BodyText:   "body of " + nativeID,
		ReceivedAt: time.Now(),
	}
}
