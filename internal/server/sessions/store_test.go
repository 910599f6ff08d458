package sessions

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/accounts/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		sess, err := s.Create(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, sess.ID, 2*idBytes)

		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "u1", got.UserID)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("guest session", func(t *testing.T) {
		sess, err := s.Create(ctx, "")
		require.NoError(t, err)
		got, err := s.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, got.UserID)
	})

	t.Run("destroy", func(t *testing.T) {
		sess, err := s.Create(ctx, "u2")
		require.NoError(t, err)
		require.NoError(t, s.Destroy(ctx, sess.ID))
		_, err = s.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)

		assert.NoError(t, s.Destroy(ctx, sess.ID), "destroying twice is fine")
	})

	t.Run("destroy all", func(t *testing.T) {
		a, err := s.Create(ctx, "u3")
		require.NoError(t, err)
		b, err := s.Create(ctx, "u3")
		require.NoError(t, err)
		other, err := s.Create(ctx, "u4")
		require.NoError(t, err)

		require.NoError(t, s.DestroyAll(ctx, "u3"))

		_, err = s.Get(ctx, a.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		_, err = s.Get(ctx, b.ID)
		assert.ErrorIs(t, err, common.ErrorNotFound)
		_, err = s.Get(ctx, other.ID)
		assert.NoError(t, err)
	})

	t.Run("flash is one-shot", func(t *testing.T) {
		sess, err := s.Create(ctx, "")
		require.NoError(t, err)

		msg, err := s.PopFlash(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, msg)

		require.NoError(t, s.SetFlash(ctx, sess.ID, "Welcome"))
		msg, err = s.PopFlash(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, "Welcome", msg)

		msg, err = s.PopFlash(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, msg)
	})

	t.Run("flash on unknown session", func(t *testing.T) {
		assert.ErrorIs(t, s.SetFlash(ctx, "missing", "x"), common.ErrorNotFound)
	})
}
