package gmail

import (
	"errors"
	"testing"

	"github.com/domsius/email-assistant/internal/provider"

	"google.golang.org/api/googleapi"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: 401}, provider.ErrAuth},
		{"rate limited", &googleapi.Error{Code: 429}, provider.ErrRateLimited},
		{
			"quota via 403",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}},
			provider.ErrRateLimited,
		},
		{"forbidden", &googleapi.Error{Code: 403}, provider.ErrAuth},
		{"server error", &googleapi.Error{Code: 503}, provider.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify404IsNotCursorExpiry(t *testing.T) {
	// A 404 from messages.get is a message deleted between list and fetch,
	// not an expired history id.
	got := classify(&googleapi.Error{Code: 404})
	if errors.Is(got, provider.ErrCursorExpired) {
		t.Errorf("classify(404) = %v, must not be a cursor expiry", got)
	}
}

func TestClassifyHistory404IsCursorExpiry(t *testing.T) {
	got := classifyHistory(&googleapi.Error{Code: 404})
	if !errors.Is(got, provider.ErrCursorExpired) {
		t.Errorf("classifyHistory(404) = %v, want cursor expiry", got)
	}
	// Everything else falls through to the shared mapping.
	if got := classifyHistory(&googleapi.Error{Code: 401}); !errors.Is(got, provider.ErrAuth) {
		t.Errorf("classifyHistory(401) = %v, want auth failure", got)
	}
}
