package scrape

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		raw string
		ok  bool
	}{
		{"https://portal.example/listing/1", true},
		{"http://portal.example", true},
		{"  https://portal.example/x  ", true},
		{"ftp://portal.example/file", false},
		{"javascript:alert(1)", false},
		{"/relative/path", false},
		{"https://", false},
		{"://bad", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := ValidateURL(tt.raw)
			if tt.ok {
				require.NoError(t, err)
				assert.NotEmpty(t, u.Host)
				return
			}
			require.Error(t, err)
			assert.Equal(t, KindInvalidURL, KindOf(err))
		})
	}
}

func TestKindOf_ThroughWrapping(t *testing.T) {
	base := &Error{Kind: KindBlocked, Provider: "local_http", URL: "https://x.example", StatusCode: 403}
	wrapped := fmt.Errorf("outer: %w", base)

	assert.Equal(t, KindBlocked, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(&Error{Kind: KindTimeout}))
	assert.True(t, IsTransient(&Error{Kind: KindBlocked}))
	assert.False(t, IsTransient(&Error{Kind: KindNotFound}))
	assert.False(t, IsTransient(&Error{Kind: KindRenderFailure}))
	assert.False(t, IsTransient(&Error{Kind: KindInvalidURL}))
	assert.False(t, IsTransient(errors.New("unclassified")))
}

func TestError_Message(t *testing.T) {
	err := &Error{Kind: KindNotFound, Provider: "browser", URL: "https://x.example/a", StatusCode: 404, Err: errors.New("gone")}
	assert.Equal(t, "scrape [browser]: not_found (status 404) https://x.example/a: gone", err.Error())
	assert.Equal(t, "gone", errors.Unwrap(err).Error())
}

func TestKindForStatus(t *testing.T) {
	assert.Equal(t, Kind(""), kindForStatus(200))
	assert.Equal(t, KindNotFound, kindForStatus(404))
	assert.Equal(t, KindNotFound, kindForStatus(410))
	assert.Equal(t, KindBlocked, kindForStatus(403))
	assert.Equal(t, KindBlocked, kindForStatus(429))
	assert.Equal(t, KindTimeout, kindForStatus(504))
	assert.Equal(t, KindRenderFailure, kindForStatus(500))
	assert.Equal(t, KindRenderFailure, kindForStatus(400))
}

func TestClassify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	<-ctx.Done()

	err := classify(ctx, "local_http", "https://x.example", errors.New("request aborted"))
	assert.Equal(t, KindTimeout, err.Kind)
	assert.Equal(t, "local_http", err.Provider)

	err = classify(context.Background(), "local_http", "https://x.example", errors.New("tls: bad certificate"))
	assert.Equal(t, KindRenderFailure, err.Kind)

	existing := &Error{Kind: KindBlocked}
	assert.Same(t, existing, classify(context.Background(), "x", "y", fmt.Errorf("w: %w", existing)))
}
