package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/domsius/email-assistant/internal/provider"
)

// DiscoveryState carries the position of one discovery pass across pages.
type DiscoveryState struct {
	// Cursor is the stored provider position going into the run.
	Cursor string
	// PageToken continues the current listing.
	PageToken string
	// Bounded is set for initial discovery and after cursor fallback; the
	// listing is then limited by the recency window and the message cap.
	Bounded bool
	// FellBack records that the stored cursor was rejected this run.
	FellBack bool
	// Listed counts records seen so far, for the bounded cap.
	Listed int
	// CursorSeen records that some page of this run already carried a
	// NextCursor, so the stored position is advancing as pages land.
	CursorSeen bool
}

// Discovery pages through provider change feeds. When a stored cursor is
// rejected it degrades exactly once to a bounded rescan instead of an
// unbounded full re-download.
type Discovery struct {
	pageSize    int
	window      time.Duration
	maxMessages int
}

func NewDiscovery(pageSize int, window time.Duration, maxMessages int) *Discovery {
	return &Discovery{pageSize: pageSize, window: window, maxMessages: maxMessages}
}

// NextPage fetches one page of change records, advancing state. Reaching the
// bounded cap ends discovery: either with a nil page when the cursor already
// advanced during the scan, or with a final records-free page carrying the
// provider's current position as NextCursor.
func (d *Discovery) NextPage(ctx context.Context, client provider.Client, cred provider.Credential, state *DiscoveryState, onRefresh provider.TokenUpdateFunc) (*provider.ChangePage, error) {
	if state.Bounded && state.Listed >= d.maxMessages {
		if state.CursorSeen {
			// The provider hands out a cursor with every page, so the stored
			// position already covers everything ingested and the next run
			// continues above it.
			log.Printf("[Discovery] Bounded scan reached cap of %d messages, stopping", d.maxMessages)
			return nil, nil
		}
		// Providers that only deliver a cursor on the final page (Gmail
		// message scan, Graph delta) would otherwise leave the account stuck
		// repeating the same capped rescan. Close the run on the provider's
		// current position instead; messages beyond the cap are forfeited,
		// which is the bounded-rescan trade-off.
		profile, err := client.Authenticate(ctx, cred, onRefresh)
		if err != nil {
			return nil, err
		}
		log.Printf("[Discovery] Bounded scan reached cap of %d messages, resetting cursor to current position %q", d.maxMessages, profile.Cursor)
		return &provider.ChangePage{NextCursor: profile.Cursor}, nil
	}

	opts := provider.ListOptions{
		Cursor:     state.Cursor,
		PageToken:  state.PageToken,
		MaxResults: d.pageSize,
	}
	if state.Cursor == "" {
		state.Bounded = true
		opts.Since = time.Now().Add(-d.window)
	}

	page, err := client.ListChanges(ctx, cred, opts, onRefresh)
	if err != nil {
		if errors.Is(err, provider.ErrCursorExpired) && !state.FellBack && state.PageToken == "" {
			log.Printf("[Discovery] Cursor %q rejected, falling back to bounded rescan", state.Cursor)
			state.Cursor = ""
			state.FellBack = true
			state.Bounded = true
			opts.Cursor = ""
			opts.Since = time.Now().Add(-d.window)
			page, err = client.ListChanges(ctx, cred, opts, onRefresh)
		}
		if err != nil {
			return nil, err
		}
	}

	state.PageToken = page.NextPageToken
	state.Listed += len(page.Records)
	if page.NextCursor != "" {
		state.CursorSeen = true
	}
	return page, nil
}
