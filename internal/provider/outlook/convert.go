package outlook

import (
	"strings"
	"time"

	"github.com/domsius/email-assistant/internal/provider"

	"github.com/microsoftgraph/msgraph-sdk-go/models"
)

func convertMessage(msg models.Messageable) *provider.RawMessage {
	raw := &provider.RawMessage{}

	if id := msg.GetId(); id != nil {
		raw.NativeID = *id
	}
	if convID := msg.GetConversationId(); convID != nil {
		raw.ThreadID = *convID
	}
	if subject := msg.GetSubject(); subject != nil {
		raw.Subject = *subject
	}
	if preview := msg.GetBodyPreview(); preview != nil {
		raw.Snippet = *preview
	}
	if from := msg.GetFrom(); from != nil {
		raw.From = convertRecipient(from)
	}
	raw.To = convertRecipients(msg.GetToRecipients())
	raw.Cc = convertRecipients(msg.GetCcRecipients())
	raw.Bcc = convertRecipients(msg.GetBccRecipients())

	if body := msg.GetBody(); body != nil && body.GetContent() != nil {
		content := *body.GetContent()
		if ct := body.GetContentType(); ct != nil && *ct == models.TEXT_BODYTYPE {
			raw.BodyText = content
		} else {
			raw.BodyHTML = content
		}
	}

	if received := msg.GetReceivedDateTime(); received != nil {
		raw.ReceivedAt = *received
	} else {
		raw.ReceivedAt = time.Now()
	}
	if isRead := msg.GetIsRead(); isRead != nil {
		raw.IsRead = *isRead
	}
	if flag := msg.GetFlag(); flag != nil {
		if status := flag.GetFlagStatus(); status != nil && *status == models.FLAGGED_FOLLOWUPFLAGSTATUS {
			raw.IsStarred = true
		}
	}

	return raw
}

func convertRecipient(r models.Recipientable) provider.Address {
	addr := provider.Address{}
	if email := r.GetEmailAddress(); email != nil {
		if name := email.GetName(); name != nil {
			addr.Name = *name
		}
		if address := email.GetAddress(); address != nil {
			addr.Address = *address
		}
	}
	return addr
}

func convertRecipients(recipients []models.Recipientable) []provider.Address {
	var out []provider.Address
	for _, r := range recipients {
		addr := convertRecipient(r)
		if addr.Address == "" {
			continue
		}
		out = append(out, addr)
	}
	return out
}

func convertAttachments(attachments []models.Attachmentable) []provider.RawAttachment {
	var out []provider.RawAttachment
	for _, att := range attachments {
		fileAtt, ok := att.(models.FileAttachmentable)
		if !ok {
			// Item and reference attachments have no downloadable bytes.
			continue
		}
		raw := provider.RawAttachment{}
		if id := fileAtt.GetId(); id != nil {
			raw.NativeID = *id
		}
		if name := fileAtt.GetName(); name != nil {
			raw.Filename = *name
		}
		if contentType := fileAtt.GetContentType(); contentType != nil {
			raw.MimeType = *contentType
		}
		if size := fileAtt.GetSize(); size != nil {
			raw.Size = int64(*size)
		}
		if contentID := fileAtt.GetContentId(); contentID != nil {
			raw.ContentID = *contentID
		}
		out = append(out, raw)
	}
	return out
}

func buildGraphMessage(msg *provider.OutgoingMessage) models.Messageable {
	message := models.NewMessage()
	message.SetSubject(strPtr(msg.Subject))

	body := models.NewItemBody()
	contentType := models.HTML_BODYTYPE
	body.SetContentType(&contentType)
	body.SetContent(strPtr(msg.BodyHTML))
	message.SetBody(body)

	message.SetToRecipients(buildRecipients(msg.To))
	message.SetCcRecipients(buildRecipients(msg.Cc))
	message.SetBccRecipients(buildRecipients(msg.Bcc))

	var attachments []models.Attachmentable
	for _, att := range msg.Attachments {
		fileAtt := models.NewFileAttachment()
		fileAtt.SetName(strPtr(att.Filename))
		fileAtt.SetContentType(strPtr(att.MimeType))
		fileAtt.SetContentBytes(att.Content)
		attachments = append(attachments, fileAtt)
	}
	if len(attachments) > 0 {
		message.SetAttachments(attachments)
	}

	return message
}

// buildRecipients splits a comma separated address list into Graph recipients.
func buildRecipients(addresses string) []models.Recipientable {
	var out []models.Recipientable
	for _, addr := range strings.Split(addresses, ",") {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		email := models.NewEmailAddress()
		email.SetAddress(strPtr(addr))
		recipient := models.NewRecipient()
		recipient.SetEmailAddress(email)
		out = append(out, recipient)
	}
	return out
}
