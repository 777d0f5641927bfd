package repository

import (
	"github.com/domsius/email-assistant/internal/message/domain"
)

// MessageRepository defines persistence for normalized messages and their
// attachment references.
type MessageRepository interface {
	// Insert creates a message row. Returns gorm.ErrDuplicatedKey (wrapped)
	// when the (account, native id) pair already exists.
	Insert(msg *domain.Message) error
	// UpdateFlags applies the mutable state of a message without touching
	// content columns. Used on re-discovery of an already-ingested message.
	UpdateFlags(accountID, providerMessageID string, read, starred, archived, spam bool) error
	SoftDelete(accountID, providerMessageID string) error
	FindByID(id string) (*domain.Message, error)
	FindByNativeID(accountID, providerMessageID string) (*domain.Message, error)
	// ListByAccount pages messages newest first and reports the total count.
	ListByAccount(accountID string, limit, offset int) ([]*domain.Message, int64, error)
	CountByContentHash(accountID, contentHash string) (int64, error)
	CountByAccount(accountID string) (int64, error)
	DeleteByAccount(accountID string) error

	CreateAttachment(att *domain.Attachment) error
	UpdateAttachment(att *domain.Attachment) error
	AttachmentsByMessage(messageID string) ([]*domain.Attachment, error)
}
