package provider

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// TokenUpdateFunc is called whenever a provider client observes a refreshed
// OAuth token, so the new credential can be persisted before it is used.
type TokenUpdateFunc func(token *oauth2.Token) error

// Credential is the decrypted credential handed to a client for one call.
// OAuth providers use the token fields; IMAP uses host/port/username/password.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time

	Host     string
	Port     int
	Username string
	Password string
}

// ChangeType classifies a change record.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// ChangeRecord is one candidate message discovered since a cursor.
type ChangeRecord struct {
	NativeID string
	ThreadID string
	Type     ChangeType
}

// ChangePage is one finite page of change records. NextPageToken restarts the
// listing mid-run; NextCursor is the provider position to persist once the
// page's records are durable. Pages with an empty NextPageToken are final.
type ChangePage struct {
	Records       []ChangeRecord
	NextPageToken string
	NextCursor    string
	TotalEstimate int
}

// ListOptions drives one ListChanges call.
type ListOptions struct {
	// Cursor is the stored provider position (history id, delta link, or
	// last UID). Empty means full/initial discovery.
	Cursor string
	// PageToken continues a listing started earlier in the same run.
	PageToken string
	// MaxResults bounds the page size.
	MaxResults int
	// Since bounds full discovery to a recent window. Ignored for
	// cursor-based incremental listing.
	Since time.Time
}

// Address is a parsed mailbox address.
type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// RawAttachment describes an attachment before its content is fetched.
type RawAttachment struct {
	NativeID  string
	Filename  string
	MimeType  string
	Size      int64
	ContentID string
}

// RawMessage is a provider message before normalization.
type RawMessage struct {
	NativeID    string
	ThreadID    string
	Subject     string
	From        Address
	To          []Address
	Cc          []Address
	Bcc         []Address
	Snippet     string
	BodyText    string
	BodyHTML    string
	ReceivedAt  time.Time
	IsRead      bool
	IsStarred   bool
	IsArchived  bool
	IsSpam      bool
	Attachments []RawAttachment
}

// Profile identifies the mailbox a credential belongs to. Cursor is the
// provider's current position, used to seed a fresh account.
type Profile struct {
	Email  string
	Cursor string
}

// WatchOptions configures push-notification registration.
type WatchOptions struct {
	// TopicName is the Pub/Sub topic for Gmail watches.
	TopicName string
	// NotificationURL is the public callback for Graph subscriptions.
	NotificationURL string
	// ClientState is the shared secret the provider echoes back on delivery.
	ClientState string
}

// WatchHandle describes a registered push channel.
type WatchHandle struct {
	SubscriptionID string
	Expiration     time.Time
}

// OutgoingAttachment is attachment content for an outbound message.
type OutgoingAttachment struct {
	Filename string
	MimeType string
	Content  []byte
}

// OutgoingMessage is an outbound message in provider-neutral form.
type OutgoingMessage struct {
	FromName    string
	FromAddress string
	To          string
	Cc          string
	Bcc         string
	Subject     string
	BodyHTML    string
	Attachments []OutgoingAttachment
}

// Client is the capability set every mail provider implements. Providers that
// lack a capability return ErrNotSupported. Implementations translate native
// failures into the package error taxonomy and perform no local mutation
// beyond invoking the token update callback.
type Client interface {
	// Authenticate validates the credential and reports the mailbox it
	// belongs to along with the provider's current cursor position.
	Authenticate(ctx context.Context, cred Credential, onTokenRefresh TokenUpdateFunc) (*Profile, error)

	// ListChanges turns a stored cursor into one finite page of candidate
	// messages. Returns ErrCursorExpired when the stored position is no
	// longer usable and discovery must degrade to a bounded rescan.
	ListChanges(ctx context.Context, cred Credential, opts ListOptions, onTokenRefresh TokenUpdateFunc) (*ChangePage, error)

	// FetchMessage retrieves the full message for a change record.
	FetchMessage(ctx context.Context, cred Credential, nativeID string, onTokenRefresh TokenUpdateFunc) (*RawMessage, error)

	// FetchAttachment retrieves one attachment's content.
	FetchAttachment(ctx context.Context, cred Credential, nativeID, attachmentID string, onTokenRefresh TokenUpdateFunc) ([]byte, error)

	// RegisterWatch registers a push-notification channel.
	RegisterWatch(ctx context.Context, cred Credential, opts WatchOptions, onTokenRefresh TokenUpdateFunc) (*WatchHandle, error)

	// StopWatch tears down the push-notification channel.
	StopWatch(ctx context.Context, cred Credential, subscriptionID string, onTokenRefresh TokenUpdateFunc) error

	// SendMessage submits an outbound message through the provider.
	SendMessage(ctx context.Context, cred Credential, msg *OutgoingMessage, onTokenRefresh TokenUpdateFunc) error
}
