package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

// Message is a normalized mail item. The (account_id, provider_message_id)
// pair is the idempotency key for ingestion: a second discovery of the same
// native id lands on the update path, never on a second row.
type Message struct {
	ID                string `json:"id" gorm:"primaryKey"`
	AccountID         string `json:"account_id" gorm:"uniqueIndex:idx_account_native;index;not null"`
	ProviderMessageID string `json:"provider_message_id" gorm:"uniqueIndex:idx_account_native;not null"`
	ThreadID          string `json:"thread_id" gorm:"index"`

	// ContentHash enables near-duplicate detection independent of the
	// provider id (re-deliveries arrive with fresh native ids).
	ContentHash string `json:"content_hash" gorm:"index"`

	Subject     string `json:"subject"`
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address" gorm:"index"`
	// Recipient lists are stored JSON-serialized.
	ToAddresses string `json:"-"`
	CcAddresses string `json:"-"`
	Snippet     string `json:"snippet"`
	BodyText    string `json:"body_text" gorm:"type:text"`
	BodyHTML    string `json:"body_html" gorm:"type:text"`

	ReceivedAt time.Time `json:"received_at" gorm:"index"`

	IsRead     bool `json:"is_read"`
	IsStarred  bool `json:"is_starred"`
	IsArchived bool `json:"is_archived"`
	IsSpam     bool `json:"is_spam"`

	Attachments []Attachment `json:"attachments" gorm:"foreignKey:MessageID"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Attachment is a reference to out-of-band binary content. BlobKey is empty
// and FetchError set when the content could not be retrieved; such rows are
// retried on later syncs instead of failing the message.
type Attachment struct {
	ID                   string `json:"id" gorm:"primaryKey"`
	MessageID            string `json:"message_id" gorm:"index;not null"`
	ProviderAttachmentID string `json:"provider_attachment_id"`
	Filename             string `json:"filename"`
	MimeType             string `json:"mime_type"`
	Size                 int64  `json:"size"`
	// ContentID identifies inline resources referenced from HTML bodies.
	ContentID  string `json:"content_id,omitempty"`
	BlobKey    string `json:"-"`
	FetchError string `json:"fetch_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ComputeContentHash hashes the canonical message content. Provider ids are
// deliberately excluded so re-deliveries hash identically.
func ComputeContentHash(subject, fromAddress, bodyText, bodyHTML string) string {
	h := sha256.New()
	h.Write([]byte(subject))
	h.Write([]byte{0})
	h.Write([]byte(fromAddress))
	h.Write([]byte{0})
	h.Write([]byte(bodyText))
	h.Write([]byte{0})
	h.Write([]byte(bodyHTML))
	return hex.EncodeToString(h.Sum(nil))
}
