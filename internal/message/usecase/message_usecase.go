package usecase

import (
	"errors"
	"fmt"

	"github.com/domsius/email-assistant/internal/message/domain"
	"github.com/domsius/email-assistant/internal/message/repository"
	"github.com/domsius/email-assistant/pkg/blob"
)

// MessageUsecase exposes the synced mailbox contents.
type MessageUsecase interface {
	ListMessages(accountID string, limit, offset int) ([]*domain.Message, int64, error)
	GetMessage(id string) (*domain.Message, error)
	// GetAttachmentContent returns the stored bytes of an attachment along
	// with its metadata row.
	GetAttachmentContent(messageID, attachmentID string) (*domain.Attachment, []byte, error)
}

type messageUsecase struct {
	messages repository.MessageRepository
	blobs    *blob.Store
}

func NewMessageUsecase(messages repository.MessageRepository, blobs *blob.Store) MessageUsecase {
	return &messageUsecase{messages: messages, blobs: blobs}
}

func (u *messageUsecase) ListMessages(accountID string, limit, offset int) ([]*domain.Message, int64, error) {
	return u.messages.ListByAccount(accountID, limit, offset)
}

func (u *messageUsecase) GetMessage(id string) (*domain.Message, error) {
	return u.messages.FindByID(id)
}

func (u *messageUsecase) GetAttachmentContent(messageID, attachmentID string) (*domain.Attachment, []byte, error) {
	atts, err := u.messages.AttachmentsByMessage(messageID)
	if err != nil {
		return nil, nil, err
	}

	for _, att := range atts {
		if att.ID != attachmentID {
			continue
		}
		if att.BlobKey == "" {
			if att.FetchError != "" {
				return nil, nil, fmt.Errorf("attachment content unavailable: %s", att.FetchError)
			}
			return nil, nil, errors.New("attachment content not yet fetched")
		}
		content, err := u.blobs.Get(att.BlobKey)
		if err != nil {
			return nil, nil, err
		}
		return att, content, nil
	}
	return nil, nil, errors.New("attachment not found")
}
