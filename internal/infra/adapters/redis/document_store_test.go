package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/pion/webrtc/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/roomspeak-mesh/internal/application/config"
	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

const (
	testRoom = "lobby"
	waitFor  = 2 * time.Second
	tick     = 5 * time.Millisecond
)

func newTestStore(t *testing.T) (*DocumentStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	mr.SetTime(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	client, err := NewClient(context.Background(), config.RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)

	store := NewDocumentStore(client)
	t.Cleanup(func() { _ = store.Close() })

	return store, mr
}

type recorder[T any] struct {
	mu    sync.Mutex
	items []T
}

func (r *recorder[T]) add(item T) {
	r.mu.Lock()
	r.items = append(r.items, item)
	r.mu.Unlock()
}

func (r *recorder[T]) snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]T(nil), r.items...)
}

func offer(from, to string) models.SignalMessage {
	return models.SignalMessage{
		Type: models.SignalOffer,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		From: from,
		To:   to,
	}
}

func TestDocumentStore_UpsertUserKeepsJoinedAt(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	first, err := store.UpsertUser(ctx, testRoom, models.Participant{ID: "a", ScreenName: "alice", Active: true})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), first.JoinedAt)

	mr.SetTime(time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC))

	second, err := store.UpsertUser(ctx, testRoom, models.Participant{ID: "a", ScreenName: "alice2", Active: true})
	require.NoError(t, err)
	assert.True(t, first.JoinedAt.Equal(second.JoinedAt))

	assert.True(t, mr.Exists(usersKey(testRoom)))
	keys, err := mr.HKeys(usersKey(testRoom))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, keys)
}

func TestDocumentStore_WatchUsersSnapshotThenLive(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertUser(ctx, testRoom, models.Participant{ID: "b", Active: true})
	require.NoError(t, err)

	mr.SetTime(time.Date(2024, 5, 1, 11, 0, 0, 0, time.UTC))
	_, err = store.UpsertUser(ctx, testRoom, models.Participant{ID: "a", Active: true})
	require.NoError(t, err)

	changes := &recorder[models.UserChange]{}
	unsubscribe, err := store.WatchUsers(ctx, testRoom, changes.add)
	require.NoError(t, err)

	_, err = store.UpsertUser(ctx, testRoom, models.Participant{ID: "c", Active: true})
	require.NoError(t, err)
	require.NoError(t, store.DeleteUser(ctx, testRoom, "b"))
	require.NoError(t, store.DeleteUser(ctx, testRoom, "b"))

	require.Eventually(t, func() bool { return len(changes.snapshot()) == 4 }, waitFor, tick)

	got := changes.snapshot()
	assert.Equal(t, "a", got[0].Participant.ID)
	assert.Equal(t, "b", got[1].Participant.ID)
	assert.Equal(t, models.ChangeAdded, got[2].Type)
	assert.Equal(t, "c", got[2].Participant.ID)
	assert.Equal(t, models.ChangeRemoved, got[3].Type)
	assert.Equal(t, "b", got[3].Participant.ID)

	unsubscribe()
	unsubscribe()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(usersChannel(testRoom))[usersChannel(testRoom)] == 0
	}, waitFor, tick)
}

func TestDocumentStore_UnsubscribeWaitsForRunningCallback(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})

	var once sync.Once

	unsubscribe, err := store.WatchSignals(ctx, testRoom, "b", func(models.SignalMessage) {
		once.Do(func() { close(entered) })
		<-release
	})
	require.NoError(t, err)

	_, err = store.AddSignal(ctx, testRoom, offer("a", "b"))
	require.NoError(t, err)

	<-entered

	returned := make(chan struct{})
	go func() {
		unsubscribe()
		close(returned)
	}()

	select {
	case <-returned:
		t.Fatal("unsubscribe returned while callback is running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-returned:
	case <-time.After(waitFor):
		t.Fatal("unsubscribe did not return after callback finished")
	}
}

func TestDocumentStore_SignalsForRecipient(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	backlogID, err := store.AddSignal(ctx, testRoom, offer("a", "b"))
	require.NoError(t, err)
	_, err = store.AddSignal(ctx, testRoom, offer("a", "c"))
	require.NoError(t, err)

	signals := &recorder[models.SignalMessage]{}
	unsubscribe, err := store.WatchSignals(ctx, testRoom, "b", signals.add)
	require.NoError(t, err)
	defer unsubscribe()

	liveID, err := store.AddSignal(ctx, testRoom, offer("c", "b"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(signals.snapshot()) == 2 }, waitFor, tick)

	got := signals.snapshot()
	assert.Equal(t, backlogID, got[0].ID)
	assert.Equal(t, liveID, got[1].ID)
	assert.Equal(t, "c", got[1].From)
	require.NotNil(t, got[1].SDP)
	assert.Equal(t, "v=0", got[1].SDP.SDP)

	require.NoError(t, store.DeleteSignal(ctx, testRoom, backlogID))
	require.NoError(t, store.DeleteSignal(ctx, testRoom, backlogID))
}

func TestDocumentStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)

	mr.Close()

	_, err := store.UpsertUser(context.Background(), testRoom, models.Participant{ID: "a"})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = store.WatchUsers(context.Background(), testRoom, func(models.UserChange) {})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestNewClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewClient(context.Background(), config.RedisConfig{Addr: addr})
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", redis.ErrClosed), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, classify("op", context.DeadlineExceeded), domain.ErrStoreUnavailable)
	assert.ErrorIs(t, classify("op", redis.Nil), domain.ErrStoreWriteFailed)
}
