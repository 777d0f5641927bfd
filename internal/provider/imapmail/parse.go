package imapmail

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/domsius/email-assistant/internal/provider"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
)

const snippetLimit = 180

// parseMessage turns a fetched IMAP body into a provider message. Attachment
// identifiers are the 1-based position of the attachment part within the
// message, which is stable because parts are always walked in order.
func parseMessage(msg *imap.Message, section *imap.BodySectionName) (*provider.RawMessage, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("server returned no body section")
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("cannot parse message: %w", err)
	}

	raw := &provider.RawMessage{}
	header := mr.Header

	if subject, err := header.Subject(); err == nil {
		raw.Subject = subject
	}
	if date, err := header.Date(); err == nil && !date.IsZero() {
		raw.ReceivedAt = date
	} else {
		raw.ReceivedAt = time.Now()
	}
	if from, err := header.AddressList("From"); err == nil && len(from) > 0 {
		raw.From = provider.Address{Name: from[0].Name, Address: from[0].Address}
	}
	raw.To = headerAddresses(header, "To")
	raw.Cc = headerAddresses(header, "Cc")
	raw.Bcc = headerAddresses(header, "Bcc")

	attachmentIndex := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed part should not lose the rest of the message.
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.EqualFold(contentType, "text/html") && raw.BodyHTML == "":
				raw.BodyHTML = string(content)
			case strings.EqualFold(contentType, "text/plain") && raw.BodyText == "":
				raw.BodyText = string(content)
			}
		case *mail.AttachmentHeader:
			attachmentIndex++
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			raw.Attachments = append(raw.Attachments, provider.RawAttachment{
				NativeID: strconv.Itoa(attachmentIndex),
				Filename: filename,
				MimeType: contentType,
			})
		}
	}

	raw.Snippet = makeSnippet(raw.BodyText)
	for _, flag := range msg.Flags {
		switch flag {
		case imap.SeenFlag:
			raw.IsRead = true
		case imap.FlaggedFlag:
			raw.IsStarred = true
		}
	}
	return raw, nil
}

// extractAttachment re-walks the message and returns the content of the
// attachment at the given position.
func extractAttachment(msg *imap.Message, section *imap.BodySectionName, attachmentID string) ([]byte, error) {
	wanted, err := strconv.Atoi(attachmentID)
	if err != nil || wanted < 1 {
		return nil, fmt.Errorf("invalid attachment id %q", attachmentID)
	}

	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("server returned no body section")
	}
	mr, err := mail.CreateReader(body)
	if err != nil {
		return nil, fmt.Errorf("cannot parse message: %w", err)
	}

	attachmentIndex := 0
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if _, ok := part.Header.(*mail.AttachmentHeader); !ok {
			continue
		}
		attachmentIndex++
		if attachmentIndex != wanted {
			continue
		}
		content, err := io.ReadAll(part.Body)
		if err != nil {
			return nil, fmt.Errorf("cannot read attachment content: %w", err)
		}
		return content, nil
	}
	return nil, fmt.Errorf("attachment %q not found", attachmentID)
}

func headerAddresses(header mail.Header, field string) []provider.Address {
	list, err := header.AddressList(field)
	if err != nil {
		return nil
	}
	var out []provider.Address
	for _, addr := range list {
		out = append(out, provider.Address{Name: addr.Name, Address: addr.Address})
	}
	return out
}

func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > snippetLimit {
		return text[:snippetLimit]
	}
	return text
}
