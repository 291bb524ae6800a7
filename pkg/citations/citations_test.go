package citations

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	id1 := "44444444-4444-4444-4444-444444444444"
	id2 := "55555555-5555-5555-5555-555555555555"

	tests := []struct {
		name     string
		text     string
		expected []string
	}{
		{
			name:     "no citations",
			text:     "You spent $42 on groceries last week.",
			expected: nil,
		},
		{
			name:     "single citation",
			text:     "Your largest expense was rent [tx:" + id1 + "].",
			expected: []string{id1},
		},
		{
			name:     "multiple citations keep first seen order",
			text:     "Rent [tx:" + id2 + "] and groceries [tx:" + id1 + "].",
			expected: []string{id2, id1},
		},
		{
			name:     "repeated citation deduplicated",
			text:     "[tx:" + id1 + "] and again [tx:" + id1 + "]",
			expected: []string{id1},
		},
		{
			name:     "case insensitive marker and id lowercased",
			text:     "[TX:44444444-4444-4444-4444-44444444444A]",
			expected: []string{"44444444-4444-4444-4444-44444444444a"},
		},
		{
			name:     "malformed ids ignored",
			text:     "[tx:not-a-uuid] [tx:123]",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Extract(tt.text))
		})
	}
}

type fakeLookup struct {
	found []string
	err   error
	seen  []string
}

func (f *fakeLookup) ListCurrentIDs(_ context.Context, _ string, ids []string) ([]string, error) {
	f.seen = ids
	return f.found, f.err
}

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestVerifier_Verify(t *testing.T) {
	id1 := "44444444-4444-4444-4444-444444444444"
	id2 := "55555555-5555-5555-5555-555555555555"

	t.Run("no claims is valid", func(t *testing.T) {
		v := NewVerifier(&fakeLookup{}, testLogger())

		result, err := v.Verify(context.Background(), "tenant-a", nil)
		require.NoError(t, err)
		assert.True(t, result.AllValid)
		assert.Empty(t, result.VerifiedIDs)
	})

	t.Run("all claims resolve", func(t *testing.T) {
		lookup := &fakeLookup{found: []string{id1, id2}}
		v := NewVerifier(lookup, testLogger())

		result, err := v.Verify(context.Background(), "tenant-a", []string{id1, id2})
		require.NoError(t, err)
		assert.True(t, result.AllValid)
		assert.Equal(t, []string{id1, id2}, result.VerifiedIDs)
		assert.Equal(t, []string{id1, id2}, lookup.seen)
	})

	t.Run("one unresolved claim voids everything", func(t *testing.T) {
		lookup := &fakeLookup{found: []string{id1}}
		v := NewVerifier(lookup, testLogger())

		result, err := v.Verify(context.Background(), "tenant-a", []string{id1, id2})
		require.NoError(t, err)
		assert.False(t, result.AllValid)
		assert.Empty(t, result.VerifiedIDs)
	})

	t.Run("lookup failure propagates", func(t *testing.T) {
		lookup := &fakeLookup{err: assert.AnError}
		v := NewVerifier(lookup, testLogger())

		_, err := v.Verify(context.Background(), "tenant-a", []string{id1})
		assert.Error(t, err)
	})
}
