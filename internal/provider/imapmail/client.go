package imapmail

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/domsius/email-assistant/internal/provider"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// Client implements provider.Client over plain IMAP. Connections are dialed
// per call so a stored credential never holds a live session. IMAP has no
// change feed; incremental discovery is a UID search above the stored
// high-water mark, and deletions or flag changes on old messages are not
// observed. Push registration and sending are not available.
type Client struct{}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) dial(cred provider.Credential) (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", cred.Host, cred.Port)
	conn, err := client.DialTLS(addr, nil)
	if err != nil {
		return nil, provider.ClassifyNetworkError(err)
	}
	if err := conn.Login(cred.Username, cred.Password); err != nil {
		conn.Logout()
		return nil, fmt.Errorf("%w: login failed for %s: %v", provider.ErrAuth, cred.Username, err)
	}
	return conn, nil
}

func (c *Client) Authenticate(ctx context.Context, cred provider.Credential, onTokenRefresh provider.TokenUpdateFunc) (*provider.Profile, error) {
	conn, err := c.dial(cred)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	mbox, err := conn.Select("INBOX", true)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot select INBOX: %v", provider.ErrTransient, err)
	}

	profile := &provider.Profile{Email: cred.Username}
	// UIDNEXT-1 is the highest UID the mailbox has handed out, which is the
	// current position for UID-based discovery.
	if mbox.UidNext > 1 {
		profile.Cursor = strconv.FormatUint(uint64(mbox.UidNext-1), 10)
	}
	return profile, nil
}

// ListChanges searches INBOX for UIDs above the cursor and pages through the
// sorted result. NativeID is the message UID in decimal. The cursor is the
// highest UID of the page, so a partially persisted run resumes above what it
// already stored.
func (c *Client) ListChanges(ctx context.Context, cred provider.Credential, opts provider.ListOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.ChangePage, error) {
	conn, err := c.dial(cred)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	if _, err := conn.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("%w: cannot select INBOX: %v", provider.ErrTransient, err)
	}

	criteria := imap.NewSearchCriteria()
	var lastUID uint64
	if opts.Cursor != "" {
		lastUID, err = strconv.ParseUint(opts.Cursor, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: bad UID cursor %q", provider.ErrCursorExpired, opts.Cursor)
		}
		seqset := new(imap.SeqSet)
		seqset.AddRange(uint32(lastUID)+1, 0)
		criteria.Uid = seqset
	} else if !opts.Since.IsZero() {
		criteria.Since = opts.Since
	}

	uids, err := conn.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("%w: UID search failed: %v", provider.ErrTransient, err)
	}
	// An n:* range always matches the mailbox's highest UID, even when that
	// UID is below n, so a quiet mailbox would re-report its newest message
	// on every poll.
	uids = uidsAbove(uids, lastUID)
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	offset := 0
	if opts.PageToken != "" {
		offset, err = strconv.Atoi(opts.PageToken)
		if err != nil || offset < 0 || offset > len(uids) {
			return nil, fmt.Errorf("%w: bad page token %q", provider.ErrCursorExpired, opts.PageToken)
		}
	}

	end := len(uids)
	if opts.MaxResults > 0 && offset+opts.MaxResults < end {
		end = offset + opts.MaxResults
	}

	page := &provider.ChangePage{TotalEstimate: len(uids)}
	for _, uid := range uids[offset:end] {
		page.Records = append(page.Records, provider.ChangeRecord{
			NativeID: strconv.FormatUint(uint64(uid), 10),
			Type:     provider.ChangeCreated,
		})
	}
	if end < len(uids) {
		page.NextPageToken = strconv.Itoa(end)
	}
	if end > offset {
		page.NextCursor = strconv.FormatUint(uint64(uids[end-1]), 10)
	}
	return page, nil
}

func (c *Client) FetchMessage(ctx context.Context, cred provider.Credential, nativeID string, onTokenRefresh provider.TokenUpdateFunc) (*provider.RawMessage, error) {
	uid, err := strconv.ParseUint(nativeID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message UID %q: %w", nativeID, err)
	}

	conn, err := c.dial(cred)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	if _, err := conn.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("%w: cannot select INBOX: %v", provider.ErrTransient, err)
	}

	msg, section, err := fetchOne(conn, uint32(uid))
	if err != nil {
		return nil, err
	}

	raw, err := parseMessage(msg, section)
	if err != nil {
		return nil, err
	}
	raw.NativeID = nativeID
	return raw, nil
}

func (c *Client) FetchAttachment(ctx context.Context, cred provider.Credential, nativeID, attachmentID string, onTokenRefresh provider.TokenUpdateFunc) ([]byte, error) {
	uid, err := strconv.ParseUint(nativeID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message UID %q: %w", nativeID, err)
	}

	conn, err := c.dial(cred)
	if err != nil {
		return nil, err
	}
	defer conn.Logout()

	if _, err := conn.Select("INBOX", true); err != nil {
		return nil, fmt.Errorf("%w: cannot select INBOX: %v", provider.ErrTransient, err)
	}

	msg, section, err := fetchOne(conn, uint32(uid))
	if err != nil {
		return nil, err
	}
	return extractAttachment(msg, section, attachmentID)
}

func (c *Client) RegisterWatch(ctx context.Context, cred provider.Credential, opts provider.WatchOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.WatchHandle, error) {
	return nil, fmt.Errorf("%w: IMAP has no push notifications", provider.ErrNotSupported)
}

func (c *Client) StopWatch(ctx context.Context, cred provider.Credential, subscriptionID string, onTokenRefresh provider.TokenUpdateFunc) error {
	return fmt.Errorf("%w: IMAP has no push notifications", provider.ErrNotSupported)
}

func (c *Client) SendMessage(ctx context.Context, cred provider.Credential, msg *provider.OutgoingMessage, onTokenRefresh provider.TokenUpdateFunc) error {
	return fmt.Errorf("%w: sending requires SMTP, which is not configured for IMAP accounts", provider.ErrNotSupported)
}

// uidsAbove keeps only UIDs strictly greater than lastUID.
func uidsAbove(uids []uint32, lastUID uint64) []uint32 {
	if lastUID == 0 {
		return uids
	}
	filtered := uids[:0]
	for _, uid := range uids {
		if uint64(uid) > lastUID {
			filtered = append(filtered, uid)
		}
	}
	return filtered
}

// fetchOne retrieves a single message body by UID.
func fetchOne(conn *client.Client, uid uint32) (*imap.Message, *imap.BodySectionName, error) {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- conn.UidFetch(seqset, items, messages)
	}()

	var msg *imap.Message
	for m := range messages {
		msg = m
	}
	if err := <-done; err != nil {
		return nil, nil, fmt.Errorf("%w: UID fetch failed: %v", provider.ErrTransient, err)
	}
	if msg == nil {
		return nil, nil, fmt.Errorf("message with UID %d not found", uid)
	}
	return msg, section, nil
}
