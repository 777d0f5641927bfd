package outlook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/domsius/email-assistant/internal/provider"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	"github.com/microsoftgraph/msgraph-sdk-go/users"
)

// Graph caps mail subscriptions at 4230 minutes; stay under it.
const subscriptionLifetime = 70 * time.Hour

const latestDeltaURL = "https://graph.microsoft.com/v1.0/me/mailFolders/inbox/messages/delta?$deltaToken=latest"

var deltaSelect = []string{
	"id", "conversationId", "subject", "from", "toRecipients", "ccRecipients",
	"bodyPreview", "receivedDateTime", "isRead", "flag", "hasAttachments",
}

// Client implements provider.Client against Microsoft Graph. Incremental
// discovery uses delta query links; the same delta endpoint without a token
// serves as the bounded full scan.
type Client struct{}

func NewClient() *Client {
	return &Client{}
}

// staticTokenCredential adapts an already-refreshed access token to the
// azcore credential interface. Refresh happens before a run, not here.
type staticTokenCredential struct {
	token string
}

func (c *staticTokenCredential) GetToken(ctx context.Context, options policy.TokenRequestOptions) (azcore.AccessToken, error) {
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(1 * time.Hour),
	}, nil
}

func (c *Client) graph(cred provider.Credential) (*msgraphsdk.GraphServiceClient, error) {
	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(
		&staticTokenCredential{token: cred.AccessToken}, []string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create Graph client: %w", err)
	}
	return client, nil
}

func (c *Client) Authenticate(ctx context.Context, cred provider.Credential, onTokenRefresh provider.TokenUpdateFunc) (*provider.Profile, error) {
	client, err := c.graph(cred)
	if err != nil {
		return nil, err
	}

	me, err := client.Me().Get(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}

	email := ""
	if addr := me.GetMail(); addr != nil {
		email = *addr
	} else if upn := me.GetUserPrincipalName(); upn != nil {
		email = *upn
	}

	// deltaToken=latest answers with a delta link for the mailbox's current
	// state without enumerating anything.
	builder := users.NewItemMailFoldersItemMessagesDeltaRequestBuilder(latestDeltaURL, client.GetAdapter())
	resp, err := builder.Get(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}

	profile := &provider.Profile{Email: email}
	if delta := resp.GetOdataDeltaLink(); delta != nil {
		profile.Cursor = *delta
	}
	return profile, nil
}

func (c *Client) ListChanges(ctx context.Context, cred provider.Credential, opts provider.ListOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.ChangePage, error) {
	client, err := c.graph(cred)
	if err != nil {
		return nil, err
	}

	var resp users.ItemMailFoldersItemMessagesDeltaGetResponseable

	switch {
	case opts.PageToken != "":
		// Continue a listing already in flight.
		builder := users.NewItemMailFoldersItemMessagesDeltaRequestBuilder(opts.PageToken, client.GetAdapter())
		resp, err = builder.Get(ctx, nil)
	case opts.Cursor != "":
		// Incremental: replay the stored delta link.
		builder := users.NewItemMailFoldersItemMessagesDeltaRequestBuilder(opts.Cursor, client.GetAdapter())
		resp, err = builder.Get(ctx, nil)
	default:
		// Initial or post-expiry scan, bounded by the recency window.
		config := &users.ItemMailFoldersItemMessagesDeltaRequestBuilderGetRequestConfiguration{
			QueryParameters: &users.ItemMailFoldersItemMessagesDeltaRequestBuilderGetQueryParameters{
				Select: deltaSelect,
			},
		}
		if opts.MaxResults > 0 {
			config.QueryParameters.Top = int32Ptr(int32(opts.MaxResults))
		}
		if !opts.Since.IsZero() {
			filter := fmt.Sprintf("receivedDateTime ge %s", opts.Since.UTC().Format(time.RFC3339))
			config.QueryParameters.Filter = &filter
		}
		resp, err = client.Me().MailFolders().ByMailFolderId("inbox").Messages().Delta().Get(ctx, config)
	}
	if err != nil {
		return nil, classify(err)
	}

	page := &provider.ChangePage{}
	for _, msg := range resp.GetValue() {
		id := msg.GetId()
		if id == nil || *id == "" {
			continue
		}
		record := provider.ChangeRecord{NativeID: *id, Type: provider.ChangeCreated}
		if convID := msg.GetConversationId(); convID != nil {
			record.ThreadID = *convID
		}
		// Delta marks deletions with an @removed annotation instead of a
		// change type field.
		if _, removed := msg.GetAdditionalData()["@removed"]; removed {
			record.Type = provider.ChangeDeleted
		}
		page.Records = append(page.Records, record)
	}

	if next := resp.GetOdataNextLink(); next != nil {
		page.NextPageToken = *next
	}
	if delta := resp.GetOdataDeltaLink(); delta != nil {
		page.NextCursor = *delta
	}
	return page, nil
}

func (c *Client) FetchMessage(ctx context.Context, cred provider.Credential, nativeID string, onTokenRefresh provider.TokenUpdateFunc) (*provider.RawMessage, error) {
	client, err := c.graph(cred)
	if err != nil {
		return nil, err
	}

	config := &users.ItemMessagesMessageItemRequestBuilderGetRequestConfiguration{
		QueryParameters: &users.ItemMessagesMessageItemRequestBuilderGetQueryParameters{
			Select: []string{
				"id", "conversationId", "subject", "from", "toRecipients",
				"ccRecipients", "bccRecipients", "bodyPreview", "body",
				"receivedDateTime", "isRead", "flag", "hasAttachments",
			},
		},
	}
	msg, err := client.Me().Messages().ByMessageId(nativeID).Get(ctx, config)
	if err != nil {
		return nil, classify(err)
	}

	raw := convertMessage(msg)

	if has := msg.GetHasAttachments(); has != nil && *has {
		attResp, err := client.Me().Messages().ByMessageId(nativeID).Attachments().Get(ctx, nil)
		if err != nil {
			return nil, classify(err)
		}
		raw.Attachments = convertAttachments(attResp.GetValue())
	}

	return raw, nil
}

func (c *Client) FetchAttachment(ctx context.Context, cred provider.Credential, nativeID, attachmentID string, onTokenRefresh provider.TokenUpdateFunc) ([]byte, error) {
	client, err := c.graph(cred)
	if err != nil {
		return nil, err
	}

	att, err := client.Me().Messages().ByMessageId(nativeID).Attachments().ByAttachmentId(attachmentID).Get(ctx, nil)
	if err != nil {
		return nil, classify(err)
	}

	fileAtt, ok := att.(models.FileAttachmentable)
	if !ok {
		return nil, fmt.Errorf("%w: attachment %s is not a file attachment", provider.ErrNotSupported, attachmentID)
	}
	return fileAtt.GetContentBytes(), nil
}

func (c *Client) RegisterWatch(ctx context.Context, cred provider.Credential, opts provider.WatchOptions, onTokenRefresh provider.TokenUpdateFunc) (*provider.WatchHandle, error) {
	client, err := c.graph(cred)
	if err != nil {
		return nil, err
	}

	expiration := time.Now().Add(subscriptionLifetime)
	sub := models.NewSubscription()
	sub.SetChangeType(strPtr("created,updated,deleted"))
	sub.SetNotificationUrl(strPtr(opts.NotificationURL))
	sub.SetResource(strPtr("/me/messages"))
	sub.SetExpirationDateTime(&expiration)
	sub.SetClientState(strPtr(opts.ClientState))

	created, err := client.Subscriptions().Post(ctx, sub, nil)
	if err != nil {
		return nil, classify(err)
	}

	handle := &provider.WatchHandle{Expiration: expiration}
	if id := created.GetId(); id != nil {
		handle.SubscriptionID = *id
	}
	if exp := created.GetExpirationDateTime(); exp != nil {
		handle.Expiration = *exp
	}
	return handle, nil
}

func (c *Client) StopWatch(ctx context.Context, cred provider.Credential, subscriptionID string, onTokenRefresh provider.TokenUpdateFunc) error {
	if subscriptionID == "" {
		return nil
	}
	client, err := c.graph(cred)
	if err != nil {
		return err
	}
	if err := client.Subscriptions().BySubscriptionId(subscriptionID).Delete(ctx, nil); err != nil {
		return classify(err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, cred provider.Credential, msg *provider.OutgoingMessage, onTokenRefresh provider.TokenUpdateFunc) error {
	client, err := c.graph(cred)
	if err != nil {
		return err
	}

	body := users.NewItemSendMailPostRequestBody()
	body.SetMessage(buildGraphMessage(msg))
	body.SetSaveToSentItems(boolPtr(true))

	if err := client.Me().SendMail().Post(ctx, body, nil); err != nil {
		return classify(err)
	}
	return nil
}

// classify translates Graph errors into the provider taxonomy.
func classify(err error) error {
	var odataErr *odataerrors.ODataError
	if errors.As(err, &odataErr) {
		switch code := odataErr.ResponseStatusCode; {
		case code == 401 || code == 403:
			return fmt.Errorf("%w: %v", provider.ErrAuth, err)
		case code == 410:
			// Gone: the delta token has expired.
			return fmt.Errorf("%w: %v", provider.ErrCursorExpired, err)
		case code == 429:
			return fmt.Errorf("%w: %v", provider.ErrRateLimited, err)
		case code >= 500:
			return fmt.Errorf("%w: %v", provider.ErrTransient, err)
		}
		return err
	}
	return provider.ClassifyNetworkError(err)
}

func int32Ptr(i int32) *int32 { return &i }
func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
