package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	msgdomain "github.com/domsius/email-assistant/internal/message/domain"
	msgrepo "github.com/domsius/email-assistant/internal/message/repository"
	"github.com/domsius/email-assistant/internal/provider"
	"github.com/domsius/email-assistant/pkg/blob"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ingestion turns change records into normalized rows. The (account, native
// id) unique index is the idempotency gate: inserting an already-known
// message lands on the flag-update path instead of creating a second row, so
// replaying a page after a crash is harmless.
type Ingestion struct {
	messages msgrepo.MessageRepository
	blobs    *blob.Store
}

func NewIngestion(messages msgrepo.MessageRepository, blobs *blob.Store) *Ingestion {
	return &Ingestion{messages: messages, blobs: blobs}
}

// Ingest processes one change record. Returns true when a new message row was
// created. Attachment failures are recorded on the attachment row and never
// fail the message.
func (i *Ingestion) Ingest(ctx context.Context, client provider.Client, cred provider.Credential, accountID string, record provider.ChangeRecord, onRefresh provider.TokenUpdateFunc) (bool, error) {
	if record.Type == provider.ChangeDeleted {
		if err := i.messages.SoftDelete(accountID, record.NativeID); err != nil {
			return false, fmt.Errorf("failed to soft-delete message %s: %w", record.NativeID, err)
		}
		return false, nil
	}

	raw, err := client.FetchMessage(ctx, cred, record.NativeID, onRefresh)
	if err != nil {
		return false, fmt.Errorf("failed to fetch message %s: %w", record.NativeID, err)
	}

	msg, err := normalize(accountID, raw)
	if err != nil {
		return false, err
	}

	if count, err := i.messages.CountByContentHash(accountID, msg.ContentHash); err == nil && count > 0 {
		// Same content under a fresh native id, usually a re-delivery.
		// Both rows are kept; the hash makes the pair findable.
		log.Printf("[Ingest] Near-duplicate content for account %s: message %s matches %d existing", accountID, record.NativeID, count)
	}

	if err := i.messages.Insert(msg); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Already ingested; refresh mutable state and revisit any
			// attachments that never made it to the blob store.
			if err := i.messages.UpdateFlags(accountID, record.NativeID, raw.IsRead, raw.IsStarred, raw.IsArchived, raw.IsSpam); err != nil {
				return false, fmt.Errorf("failed to update flags for message %s: %w", record.NativeID, err)
			}
			i.retryAttachments(ctx, client, cred, accountID, raw, onRefresh)
			return false, nil
		}
		return false, fmt.Errorf("failed to insert message %s: %w", record.NativeID, err)
	}

	i.storeAttachments(ctx, client, cred, accountID, msg.ID, raw, onRefresh)
	return true, nil
}

func normalize(accountID string, raw *provider.RawMessage) (*msgdomain.Message, error) {
	toJSON, err := json.Marshal(raw.To)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize recipients: %w", err)
	}
	ccJSON, err := json.Marshal(raw.Cc)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize cc recipients: %w", err)
	}

	return &msgdomain.Message{
		ID:                uuid.New().String(),
		AccountID:         accountID,
		ProviderMessageID: raw.NativeID,
		ThreadID:          raw.ThreadID,
		ContentHash:       msgdomain.ComputeContentHash(raw.Subject, raw.From.Address, raw.BodyText, raw.BodyHTML),
		Subject:           raw.Subject,
		FromName:          raw.From.Name,
		FromAddress:       raw.From.Address,
		ToAddresses:       string(toJSON),
		CcAddresses:       string(ccJSON),
		Snippet:           raw.Snippet,
		BodyText:          raw.BodyText,
		BodyHTML:          raw.BodyHTML,
		ReceivedAt:        raw.ReceivedAt,
		IsRead:            raw.IsRead,
		IsStarred:         raw.IsStarred,
		IsArchived:        raw.IsArchived,
		IsSpam:            raw.IsSpam,
	}, nil
}

// storeAttachments runs after the message row exists. Each attachment is
// independent: a fetch failure is recorded on its row and retried on a later
// sync of the same message.
func (i *Ingestion) storeAttachments(ctx context.Context, client provider.Client, cred provider.Credential, accountID, messageID string, raw *provider.RawMessage, onRefresh provider.TokenUpdateFunc) {
	for _, rawAtt := range raw.Attachments {
		att := newAttachmentRow(messageID, rawAtt)
		i.fetchContent(ctx, client, cred, accountID, raw.NativeID, att, onRefresh)
		if err := i.messages.CreateAttachment(att); err != nil {
			log.Printf("[Ingest] Failed to record attachment %s of message %s: %v", rawAtt.NativeID, raw.NativeID, err)
		}
	}
}

// retryAttachments revisits a known message's attachments. Rows that never
// got a blob are fetched again; rows missing entirely (a crash landed between
// the message insert and the attachment pass) are created.
func (i *Ingestion) retryAttachments(ctx context.Context, client provider.Client, cred provider.Credential, accountID string, raw *provider.RawMessage, onRefresh provider.TokenUpdateFunc) {
	if len(raw.Attachments) == 0 {
		return
	}

	msg, err := i.messages.FindByNativeID(accountID, raw.NativeID)
	if err != nil || msg == nil {
		log.Printf("[Ingest] Cannot look up message %s for attachment retry: %v", raw.NativeID, err)
		return
	}
	existing, err := i.messages.AttachmentsByMessage(msg.ID)
	if err != nil {
		log.Printf("[Ingest] Cannot list attachments of message %s: %v", raw.NativeID, err)
		return
	}
	byNativeID := make(map[string]*msgdomain.Attachment, len(existing))
	for _, a := range existing {
		byNativeID[a.ProviderAttachmentID] = a
	}

	for _, rawAtt := range raw.Attachments {
		att, known := byNativeID[rawAtt.NativeID]
		if known && att.BlobKey != "" {
			continue
		}
		if !known {
			att = newAttachmentRow(msg.ID, rawAtt)
			i.fetchContent(ctx, client, cred, accountID, raw.NativeID, att, onRefresh)
			if err := i.messages.CreateAttachment(att); err != nil {
				log.Printf("[Ingest] Failed to record attachment %s of message %s: %v", rawAtt.NativeID, raw.NativeID, err)
			}
			continue
		}
		i.fetchContent(ctx, client, cred, accountID, raw.NativeID, att, onRefresh)
		if err := i.messages.UpdateAttachment(att); err != nil {
			log.Printf("[Ingest] Failed to update attachment %s of message %s: %v", rawAtt.NativeID, raw.NativeID, err)
		}
	}
}

func newAttachmentRow(messageID string, rawAtt provider.RawAttachment) *msgdomain.Attachment {
	return &msgdomain.Attachment{
		ID:                   uuid.New().String(),
		MessageID:            messageID,
		ProviderAttachmentID: rawAtt.NativeID,
		Filename:             rawAtt.Filename,
		MimeType:             rawAtt.MimeType,
		Size:                 rawAtt.Size,
		ContentID:            rawAtt.ContentID,
	}
}

// fetchContent pulls one attachment's bytes into the blob store, recording
// the outcome on the row. A failure sets FetchError and leaves BlobKey empty.
func (i *Ingestion) fetchContent(ctx context.Context, client provider.Client, cred provider.Credential, accountID, messageNativeID string, att *msgdomain.Attachment, onRefresh provider.TokenUpdateFunc) {
	content, err := client.FetchAttachment(ctx, cred, messageNativeID, att.ProviderAttachmentID, onRefresh)
	if err != nil {
		att.FetchError = err.Error()
		log.Printf("[Ingest] Failed to fetch attachment %s of message %s: %v", att.ProviderAttachmentID, messageNativeID, err)
		return
	}
	key, err := i.blobs.Put(accountID, att.ID, content)
	if err != nil {
		att.FetchError = err.Error()
		log.Printf("[Ingest] Failed to store attachment %s of message %s: %v", att.ProviderAttachmentID, messageNativeID, err)
		return
	}
	att.BlobKey = key
	att.FetchError = ""
	if att.Size == 0 {
		att.Size = int64(len(content))
	}
}
