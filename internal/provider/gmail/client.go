package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/domsius/email-assistant/internal/provider"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Client implements provider.Client against the Gmail API. Incremental
// discovery uses history-id deltas; full discovery is a bounded recent scan.
type Client struct {
	clientID     string
	clientSecret string
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// notifyTokenSource wraps an oauth2.TokenSource to detect refreshes so the
// rotated token is persisted before the call that triggered it proceeds.
type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback provider.TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		if err := s.callback(t); err != nil {
			// A token we cannot persist must not be used: a crash would
			// leak the rotated refresh token.
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		s.current = t
	}
	return t, nil
}

func (c *Client) service(ctx context.Context, cred provider.Credential, onTokenRefresh provider.TokenUpdateFunc) (*gmail.Service, error) {
	token := &oauth2.Token{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       cred.Expiry,
	}

	config := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     google.Endpoint,
	}

	wrapped := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	httpClient := oauth2.NewClient(ctx, wrapped)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return srv, nil
}

func (c *Client) Authenticate(ctx context.Context, cred provider.Credential, onTokenRefresh provider.TokenUpdateFunc) (*provider.Profile, error) {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	return &provider.Profile{
		Email:  profile.EmailAddress,
		Cursor: strconv.FormatUint(profile.HistoryId, 10),
	}, nil
}

func (c *Client) ListChanges(ctx context.Context, cred provider.Credential, opts provider.ListOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.ChangePage, error) {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	if opts.Cursor != "" {
		return c.listHistory(ctx, srv, opts)
	}
	return c.listRecent(ctx, srv, opts)
}

// listHistory walks the history delta above the stored history id.
func (c *Client) listHistory(ctx context.Context, srv *gmail.Service, opts provider.ListOptions) (*provider.ChangePage, error) {
	startHistoryID, err := strconv.ParseUint(opts.Cursor, 10, 64)
	if err != nil {
		// An unparsable cursor is as good as an expired one.
		return nil, fmt.Errorf("%w: bad history id %q", provider.ErrCursorExpired, opts.Cursor)
	}

	call := srv.Users.History.List("me").
		StartHistoryId(startHistoryID).
		MaxResults(int64(opts.MaxResults)).
		Context(ctx)
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classifyHistory(err)
	}

	page := &provider.ChangePage{NextPageToken: resp.NextPageToken}

	latest := startHistoryID
	seen := make(map[string]provider.ChangeType)
	var order []string
	mark := func(msg *gmail.Message, ct provider.ChangeType, override bool) {
		if msg == nil || msg.Id == "" {
			return
		}
		if _, ok := seen[msg.Id]; !ok {
			order = append(order, msg.Id)
			seen[msg.Id] = ct
			return
		}
		if override {
			seen[msg.Id] = ct
		}
	}

	for _, h := range resp.History {
		if h.Id > latest {
			latest = h.Id
		}
		for _, rec := range h.MessagesAdded {
			mark(rec.Message, provider.ChangeCreated, false)
		}
		for _, rec := range h.LabelsAdded {
			mark(rec.Message, provider.ChangeUpdated, false)
		}
		for _, rec := range h.LabelsRemoved {
			mark(rec.Message, provider.ChangeUpdated, false)
		}
		for _, rec := range h.MessagesDeleted {
			// Deletion wins over any earlier change in the same delta.
			mark(rec.Message, provider.ChangeDeleted, true)
		}
	}

	for _, id := range order {
		page.Records = append(page.Records, provider.ChangeRecord{NativeID: id, Type: seen[id]})
	}

	// resp.HistoryId is the mailbox's current position; it only becomes the
	// durable cursor once the caller has persisted this page.
	if resp.HistoryId > latest {
		latest = resp.HistoryId
	}
	page.NextCursor = strconv.FormatUint(latest, 10)
	return page, nil
}

// listRecent is the bounded full scan used on first sync and after a cursor
// expires. The window comes from opts.Since.
func (c *Client) listRecent(ctx context.Context, srv *gmail.Service, opts provider.ListOptions) (*provider.ChangePage, error) {
	call := srv.Users.Messages.List("me").
		MaxResults(int64(opts.MaxResults)).
		IncludeSpamTrash(false).
		Context(ctx)
	if !opts.Since.IsZero() {
		call = call.Q(fmt.Sprintf("after:%d", opts.Since.Unix()))
	}
	if opts.PageToken != "" {
		call = call.PageToken(opts.PageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classify(err)
	}

	page := &provider.ChangePage{
		NextPageToken: resp.NextPageToken,
		TotalEstimate: int(resp.ResultSizeEstimate),
	}
	for _, m := range resp.Messages {
		page.Records = append(page.Records, provider.ChangeRecord{
			NativeID: m.Id,
			ThreadID: m.ThreadId,
			Type:     provider.ChangeCreated,
		})
	}

	// On the final page, reset the cursor to the mailbox's current history
	// id so the next run is incremental again.
	if resp.NextPageToken == "" {
		profile, err := srv.Users.GetProfile("me").Context(ctx).Do()
		if err != nil {
			return nil, classify(err)
		}
		page.NextCursor = strconv.FormatUint(profile.HistoryId, 10)
	}
	return page, nil
}

func (c *Client) FetchMessage(ctx context.Context, cred provider.Credential, nativeID string, onTokenRefresh provider.TokenUpdateFunc) (*provider.RawMessage, error) {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	msg, err := srv.Users.Messages.Get("me", nativeID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	return convertMessage(msg), nil
}

func (c *Client) FetchAttachment(ctx context.Context, cred provider.Credential, nativeID, attachmentID string, onTokenRefresh provider.TokenUpdateFunc) ([]byte, error) {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	part, err := srv.Users.Messages.Attachments.Get("me", nativeID, attachmentID).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	data, err := base64.URLEncoding.DecodeString(part.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to decode attachment data: %w", err)
	}
	return data, nil
}

func (c *Client) RegisterWatch(ctx context.Context, cred provider.Credential, opts provider.WatchOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.WatchHandle, error) {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return nil, err
	}

	// Gmail allows a single push client per user; clear any stale watch
	// before registering ours. Failure here is not interesting.
	_ = srv.Users.Stop("me").Context(ctx).Do()

	req := &gmail.WatchRequest{
		TopicName: opts.TopicName,
		LabelIds:  []string{"INBOX"},
	}
	resp, err := srv.Users.Watch("me", req).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	return &provider.WatchHandle{
		// Gmail has no channel id for mailbox watches; notifications carry
		// the email address instead.
		SubscriptionID: "",
		Expiration:     time.UnixMilli(resp.Expiration),
	}, nil
}

func (c *Client) StopWatch(ctx context.Context, cred provider.Credential, subscriptionID string, onTokenRefresh provider.TokenUpdateFunc) error {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return err
	}
	if err := srv.Users.Stop("me").Context(ctx).Do(); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, cred provider.Credential, msg *provider.OutgoingMessage, onTokenRefresh provider.TokenUpdateFunc) error {
	srv, err := c.service(ctx, cred, onTokenRefresh)
	if err != nil {
		return err
	}

	raw := buildMime(msg)
	gmsg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := srv.Users.Messages.Send("me", gmsg).Context(ctx).Do(); err != nil {
		return classify(err)
	}
	return nil
}

// classifyHistory covers the history.list call, where a 404 means the start
// history id has aged out. A 404 anywhere else is just a missing resource.
func classifyHistory(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 404 {
		return fmt.Errorf("%w: %v", provider.ErrCursorExpired, err)
	}
	return classify(err)
}

// classify translates Gmail API errors into the provider taxonomy.
func classify(err error) error {
	if apiErr, ok := err.(*googleapi.Error); ok {
		switch {
		case apiErr.Code == 401:
			return fmt.Errorf("%w: %v", provider.ErrAuth, err)
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		case apiErr.Code == 403 && hasReason(apiErr, "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded"):
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		case apiErr.Code == 403:
			return fmt.Errorf("%w: %v", provider.ErrAuth, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", provider.ErrTransient, err)
		}
		return err
	}
	return provider.ClassifyNetworkError(err)
}

func hasReason(apiErr *googleapi.Error, reasons ...string) bool {
	for _, item := range apiErr.Errors {
		for _, reason := range reasons {
			if item.Reason == reason {
				return true
			}
		}
	}
	return false
}
