// Package notestest holds the behavior every notes.Store must share.
package notestest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tanpawarit/Chative-Rule-Based-Dialogue/agent/notes"
)

// RunStoreContract exercises store against the notes.Store contract.
func RunStoreContract(t *testing.T, store notes.Store) {
	ctx := context.Background()
	session := "contract-" + time.Now().Format("20060102150405.000000000")

	t.Run("Add then List keeps order", func(t *testing.T) {
		first, err := store.Add(ctx, session, "buy milk")
		require.NoError(t, err)
		assert.Equal(t, "buy milk", first.Text)
		assert.Equal(t, session, first.Session)
		assert.False(t, first.CreatedAt.IsZero())

		_, err = store.Add(ctx, session, "  call mum  ")
		require.NoError(t, err)

		got, err := store.List(ctx, session)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "buy milk", got[0].Text)
		assert.Equal(t, "call mum", got[1].Text)
	})

	t.Run("Sessions are isolated", func(t *testing.T) {
		other := session + "-other"
		_, err := store.Add(ctx, other, "secret")
		require.NoError(t, err)

		got, err := store.List(ctx, other)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "secret", got[0].Text)
	})

	t.Run("Unknown session lists empty", func(t *testing.T) {
		got, err := store.List(ctx, session+"-unknown")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Rejects empty input", func(t *testing.T) {
		_, err := store.Add(ctx, " ", "text")
		assert.ErrorIs(t, err, notes.ErrInvalidSession)

		_, err = store.Add(ctx, session, "   ")
		assert.ErrorIs(t, err, notes.ErrEmptyNote)

		_, err = store.List(ctx, "")
		assert.ErrorIs(t, err, notes.ErrInvalidSession)
	})
}
