package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/domsius/email-assistant/internal/provider"
)

func TestDiscoveryBoundedCapClosesOnCurrentPosition(t *testing.T) {
	d := NewDiscovery(10, 24*time.Hour, 25)
	client := &fakeProviderClient{
		listFn:        pagedListFn(100, 10, "final"),
		profileCursor: "head-42",
	}

	state := &DiscoveryState{}
	total := 0
	lastCursor := ""
	for {
		page, err := d.NextPage(context.Background(), client, provider.Credential{}, state, nil)
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		if page == nil {
			break
		}
		total += len(page.Records)
		if page.NextCursor != "" {
			lastCursor = page.NextCursor
		}
		if page.NextPageToken == "" {
			break
		}
	}

	// Cap of 25 on pages of 10: the page that crosses the cap still lands,
	// the next one does not start.
	if total != 30 {
		t.Errorf("records listed = %d, want 30", total)
	}
	// The listing never reached its final page, so the closing page must
	// carry the mailbox's current position instead of leaving the cursor
	// where it was.
	if lastCursor != "head-42" {
		t.Errorf("closing cursor = %q, want head-42", lastCursor)
	}
	if client.authCalls != 1 {
		t.Errorf("auth calls = %d, want 1 for the position lookup", client.authCalls)
	}
}

func TestDiscoveryBoundedCapKeepsPerPageCursor(t *testing.T) {
	d := NewDiscovery(10, 24*time.Hour, 25)

	// UID-style listing: every page carries the cursor it ends on.
	client := &fakeProviderClient{profileCursor: "head-99"}
	client.listFn = func(opts provider.ListOptions) (*provider.ChangePage, error) {
		inner := pagedListFn(100, 10, "final")
		page, err := inner(opts)
		if err != nil {
			return nil, err
		}
		if n := len(page.Records); n > 0 {
			page.NextCursor = page.Records[n-1].NativeID
		}
		return page, nil
	}

	state := &DiscoveryState{}
	for {
		page, err := d.NextPage(context.Background(), client, provider.Credential{}, state, nil)
		if err != nil {
			t.Fatalf("NextPage: %v", err)
		}
		if page == nil {
			break
		}
		if page.NextPageToken == "" {
			break
		}
	}

	// The cursor advanced with each page, so the cap must not clobber it
	// with a position that would skip the unlisted middle of the mailbox.
	if client.authCalls != 0 {
		t.Errorf("auth calls = %d, want 0 when pages carry their own cursor", client.authCalls)
	}
}

func TestDiscoveryFallsBackOnce(t *testing.T) {
	d := NewDiscovery(10, 24*time.Hour, 100)

	client := &fakeProviderClient{}
	client.listFn = func(opts provider.ListOptions) (*provider.ChangePage, error) {
		if opts.Cursor != "" {
			return nil, fmt.Errorf("%w", provider.ErrCursorExpired)
		}
		return &provider.ChangePage{
			Records:    []provider.ChangeRecord{{NativeID: "m1", Type: provider.ChangeCreated}},
			NextCursor: "fresh",
		}, nil
	}

	state := &DiscoveryState{Cursor: "stale"}
	page, err := d.NextPage(context.Background(), client, provider.Credential{}, state, nil)
	if err != nil {
		t.Fatalf("NextPage: %v", err)
	}
	if len(page.Records) != 1 {
		t.Errorf("records = %d, want 1 from the fallback listing", len(page.Records))
	}
	if !state.FellBack || !state.Bounded {
		t.Errorf("state = %+v, want FellBack and Bounded set", state)
	}
	if client.listCalls != 2 {
		t.Errorf("list calls = %d, want 2 (incremental then fallback)", client.listCalls)
	}
}

func TestDiscoveryCursorExpiredMidRunIsFatal(t *testing.T) {
	d := NewDiscovery(10, 24*time.Hour, 100)

	client := &fakeProviderClient{}
	client.listFn = func(opts provider.ListOptions) (*provider.ChangePage, error) {
		return nil, fmt.Errorf("%w", provider.ErrCursorExpired)
	}

	// Mid-listing expiry (a page token in flight) must not silently restart
	// the whole scan.
	state := &DiscoveryState{Cursor: "c", PageToken: "p3"}
	if _, err := d.NextPage(context.Background(), client, provider.Credential{}, state, nil); err == nil {
		t.Fatal("expected error when the cursor dies mid-listing")
	}
	if client.listCalls != 1 {
		t.Errorf("list calls = %d, want 1 (no fallback mid-listing)", client.listCalls)
	}
}
