package accesstoken

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapFinder map[string]time.Time

func (m mapFinder) TokenExpiry(_ context.Context, token string) (time.Time, error) {
	expiresAt, ok := m[token]
	if !ok {
		return time.Time{}, ErrUnknownToken
	}
	return expiresAt, nil
}

func TestIssueExpiresOneHourAfterIssuance(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer := NewIssuer(0).WithClock(func() time.Time { return now })

	token, err := issuer.Issue()
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), token.ExpiresAt)

	raw, err := base64.RawURLEncoding.DecodeString(token.Value)
	require.NoError(t, err)
	assert.Len(t, raw, 32)
}

func TestIssueProducesDistinctTokens(t *testing.T) {
	issuer := NewIssuer(time.Hour)
	seen := make(map[string]struct{}, 100)
	for i := 0; i < 100; i++ {
		token, err := issuer.Issue()
		require.NoError(t, err)
		_, dup := seen[token.Value]
		require.False(t, dup)
		seen[token.Value] = struct{}{}
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	issuer := NewIssuer(time.Hour).WithClock(func() time.Time { return now })
	finder := mapFinder{
		"fresh": now.Add(time.Minute),
		"edge":  now,
		"stale": now.Add(-time.Second),
	}

	cases := map[string]Status{
		"fresh":   Valid,
		"edge":    Valid,
		"stale":   Expired,
		"missing": NotFound,
		"":        NotFound,
	}
	for token, want := range cases {
		got, err := issuer.Validate(context.Background(), finder, token)
		require.NoError(t, err)
		assert.Equal(t, want, got, token)
	}
}
