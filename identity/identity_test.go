package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNext_AlwaysYieldsCompleteIdentity(t *testing.T) {
	t.Parallel()

	p := NewPool()
	for i := 0; i < 100; i++ {
		id := p.Next()
		assert.NotEmpty(t, id.UserAgent)
		assert.NotEmpty(t, id.Name)
	}
}

func TestNextDesktop_NeverMobile(t *testing.T) {
	t.Parallel()

	p := NewPool()
	for i := 0; i < 100; i++ {
		assert.False(t, p.NextDesktop().Mobile)
	}
}

func TestNextMobile_AlwaysMobile(t *testing.T) {
	t.Parallel()

	p := NewPool()
	for i := 0; i < 100; i++ {
		assert.True(t, p.NextMobile().Mobile)
	}
}

func TestNext_CoversMultipleSignatures(t *testing.T) {
	t.Parallel()

	p := NewPool()
	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		seen[p.Next().Name] = struct{}{}
	}
	// Weighted selection over six entries should hit more than one.
	require.Greater(t, len(seen), 1)
}

func TestHeadersMatchFormFactor(t *testing.T) {
	t.Parallel()

	p := NewPool()
	for i := 0; i < 50; i++ {
		id := p.NextMobile()
		if hint, ok := id.Headers["Sec-Ch-Ua-Mobile"]; ok {
			assert.Equal(t, "?1", hint, "mobile identity %s carries desktop hint", id.Name)
		}
	}
}
