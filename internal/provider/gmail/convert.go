package gmail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/domsius/email-assistant/internal/provider"

	"google.golang.org/api/gmail/v1"
)

func convertMessage(msg *gmail.Message) *provider.RawMessage {
	from := parseAddress(getHeader(msg.Payload.Headers, "From"))
	bodyText, bodyHTML := getBodies(msg.Payload)

	return &provider.RawMessage{
		NativeID:    msg.Id,
		ThreadID:    msg.ThreadId,
		Subject:     getHeader(msg.Payload.Headers, "Subject"),
		From:        from,
		To:          parseAddressList(getHeader(msg.Payload.Headers, "To")),
		Cc:          parseAddressList(getHeader(msg.Payload.Headers, "Cc")),
		Snippet:     msg.Snippet,
		BodyText:    bodyText,
		BodyHTML:    bodyHTML,
		ReceivedAt:  time.UnixMilli(msg.InternalDate),
		IsRead:      !hasLabel(msg.LabelIds, "UNREAD"),
		IsStarred:   hasLabel(msg.LabelIds, "STARRED"),
		IsArchived:  !hasLabel(msg.LabelIds, "INBOX") && !hasLabel(msg.LabelIds, "SPAM") && !hasLabel(msg.LabelIds, "TRASH"),
		IsSpam:      hasLabel(msg.LabelIds, "SPAM"),
		Attachments: getAttachments(msg.Payload),
	}
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func parseAddress(raw string) provider.Address {
	if raw == "" {
		return provider.Address{}
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return provider.Address{Name: addr.Name, Address: addr.Address}
	}
	return provider.Address{Address: strings.TrimSpace(raw)}
}

func parseAddressList(raw string) []provider.Address {
	if raw == "" {
		return nil
	}
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		// Fall back to comma splitting for non-conforming headers.
		var out []provider.Address
		for _, part := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, provider.Address{Address: trimmed})
			}
		}
		return out
	}
	out := make([]provider.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, provider.Address{Name: a.Name, Address: a.Address})
	}
	return out
}

func getBodies(payload *gmail.MessagePart) (string, string) {
	// Single-part message: the payload itself carries the body.
	if payload.Body != nil && payload.Body.Data != "" && len(payload.Parts) == 0 {
		data, err := base64.URLEncoding.DecodeString(payload.Body.Data)
		if err == nil {
			if payload.MimeType == "text/html" {
				return "", string(data)
			}
			return string(data), ""
		}
	}

	var plainBody, htmlBody string
	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					switch part.MimeType {
					case "text/html":
						if htmlBody == "" {
							htmlBody = string(data)
						}
					case "text/plain":
						if plainBody == "" {
							plainBody = string(data)
						}
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)

	return plainBody, htmlBody
}

func getAttachments(payload *gmail.MessagePart) []provider.RawAttachment {
	var attachments []provider.RawAttachment

	var findAttachments func(parts []*gmail.MessagePart)
	findAttachments = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				contentID := strings.Trim(getHeader(part.Headers, "Content-ID"), "<>")
				attachments = append(attachments, provider.RawAttachment{
					NativeID:  part.Body.AttachmentId,
					Filename:  part.Filename,
					MimeType:  part.MimeType,
					Size:      part.Body.Size,
					ContentID: contentID,
				})
			}
			if len(part.Parts) > 0 {
				findAttachments(part.Parts)
			}
		}
	}
	findAttachments(payload.Parts)
	return attachments
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}

// buildMime assembles an RFC 822 message for the raw-upload send path.
func buildMime(msg *provider.OutgoingMessage) []byte {
	var buf bytes.Buffer
	boundary := "mixed_boundary_email_assistant"

	if msg.FromName != "" && msg.FromAddress != "" {
		encodedName := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(msg.FromName)))
		buf.WriteString(fmt.Sprintf("From: %s <%s>\r\n", encodedName, msg.FromAddress))
	}
	buf.WriteString(fmt.Sprintf("To: %s\r\n", msg.To))
	if msg.Cc != "" {
		buf.WriteString(fmt.Sprintf("Cc: %s\r\n", msg.Cc))
	}
	if msg.Bcc != "" {
		buf.WriteString(fmt.Sprintf("Bcc: %s\r\n", msg.Bcc))
	}
	encodedSubject := fmt.Sprintf("=?utf-8?B?%s?=", base64.StdEncoding.EncodeToString([]byte(msg.Subject)))
	buf.WriteString(fmt.Sprintf("Subject: %s\r\n", encodedSubject))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString(fmt.Sprintf("Content-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary))

	buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(msg.BodyHTML)
	buf.WriteString("\r\n")

	for _, att := range msg.Attachments {
		encoded := base64.StdEncoding.EncodeToString(att.Content)

		buf.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		buf.WriteString(fmt.Sprintf("Content-Type: %s; name=%q\r\n", att.MimeType, att.Filename))
		buf.WriteString("Content-Transfer-Encoding: base64\r\n")
		buf.WriteString(fmt.Sprintf("Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename))

		// RFC 2045 line length limit
		for i := 0; i < len(encoded); i += 76 {
			end := i + 76
			if end > len(encoded) {
				end = len(encoded)
			}
			buf.WriteString(encoded[i:end] + "\r\n")
		}
	}

	buf.WriteString(fmt.Sprintf("--%s--", boundary))
	return buf.Bytes()
}
