package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/session"
	"github.com/sanosuguru/go-seat-booking-bot/internal/domain/venue"
)

func TestSessionStore_GetCreatesIdleSession(t *testing.T) {
	store := NewSessionStore()
	key := session.Key{ChatID: 1, UserID: 2}

	sess, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, key, sess.Key)
	assert.True(t, sess.IsIdle())

	count, _ := store.Count(context.Background())
	assert.Equal(t, 0, count, "取得しただけでは保存されない")
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := session.Key{ChatID: 1, UserID: 2}
	ref := venue.SeatRef{Section: "A", Row: 3, Seat: 5}

	sess, _ := store.Get(ctx, key)
	sess.Start()
	sess.Toggle(ref, false)
	require.NoError(t, store.Save(ctx, sess))

	t.Run("保存した内容が取得できる", func(t *testing.T) {
		got, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, session.StepSelectSection, got.Step)
		assert.Equal(t, []venue.SeatRef{ref}, got.Pending)
	})

	t.Run("取得したセッションを変更しても保存内容は変わらない", func(t *testing.T) {
		got, _ := store.Get(ctx, key)
		got.Toggle(venue.SeatRef{Section: "A", Row: 3, Seat: 6}, false)
		got.Pending[0].Seat = 99

		again, _ := store.Get(ctx, key)
		assert.Equal(t, []venue.SeatRef{ref}, again.Pending)
	})

	t.Run("保存後に元のセッションを変更しても影響しない", func(t *testing.T) {
		sess.Pending[0].Seat = 42
		again, _ := store.Get(ctx, key)
		assert.Equal(t, 5, again.Pending[0].Seat)
	})
}

func TestSessionStore_SaveIdleDeletes(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := session.Key{ChatID: 1, UserID: 2}

	sess, _ := store.Get(ctx, key)
	sess.Start()
	require.NoError(t, store.Save(ctx, sess))

	sess.Clear()
	require.NoError(t, store.Save(ctx, sess))

	count, _ := store.Count(ctx)
	assert.Equal(t, 0, count)
}

func TestSessionStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	key := session.Key{ChatID: 1, UserID: 2}

	sess, _ := store.Get(ctx, key)
	sess.Start()
	require.NoError(t, store.Save(ctx, sess))
	require.NoError(t, store.Delete(ctx, key))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, got.IsIdle())
}

func TestSessionStore_Sweep(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	stale := session.New(session.Key{ChatID: 1, UserID: 1})
	stale.Start()
	require.NoError(t, store.Save(ctx, stale))
	// Save 後に時刻を書き換える
	store.sessions[stale.Key].UpdatedAt = time.Now().Add(-2 * time.Hour)

	fresh := session.New(session.Key{ChatID: 2, UserID: 2})
	fresh.Start()
	require.NoError(t, store.Save(ctx, fresh))

	removed, err := store.Sweep(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	count, _ := store.Count(ctx)
	assert.Equal(t, 1, count)

	got, _ := store.Get(ctx, stale.Key)
	assert.True(t, got.IsIdle(), "破棄されたセッションはアイドルとして作り直される")
}
