package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
	"github.com/qrave1/roomspeak-mesh/internal/infra/adapters/memory"
)

type sessionFixture struct {
	session SessionUsecase
	factory *fakeFactory
	device  *fakeDevice
	track   *fakeTrack
}

func newSessionFixture(t *testing.T, store domain.DocumentStore) *sessionFixture {
	t.Helper()

	track := newFakeTrack(t)
	device := &fakeDevice{tracks: []domain.LocalTrack{track}}
	factory := &fakeFactory{}

	f := &sessionFixture{
		session: NewSessionUsecase(NewSignalingUsecase(store), NewMediaUsecase(device), factory, discardSinks{}),
		factory: factory,
		device:  device,
		track:   track,
	}

	t.Cleanup(func() { f.session.LeaveRoom(context.Background()) })

	return f
}

// unavailableStore - хранилище, в которое нельзя записать участника
type unavailableStore struct {
	*memory.DocumentStore
}

func (s unavailableStore) UpsertUser(context.Context, string, models.Participant) (models.Participant, error) {
	return models.Participant{}, fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)
}

// capturingStore запоминает обработчики подписок, чтобы вызвать их после выхода
type capturingStore struct {
	*memory.DocumentStore

	mu        sync.Mutex
	onUsers   func(models.UserChange)
	onSignals func(models.SignalMessage)
}

func (s *capturingStore) WatchUsers(
	ctx context.Context,
	roomID string,
	fn func(models.UserChange),
) (domain.Unsubscribe, error) {
	s.mu.Lock()
	s.onUsers = fn
	s.mu.Unlock()

	return s.DocumentStore.WatchUsers(ctx, roomID, fn)
}

func (s *capturingStore) WatchSignals(
	ctx context.Context,
	roomID, recipientID string,
	fn func(models.SignalMessage),
) (domain.Unsubscribe, error) {
	s.mu.Lock()
	s.onSignals = fn
	s.mu.Unlock()

	return s.DocumentStore.WatchSignals(ctx, roomID, recipientID, fn)
}

func (s *capturingStore) handlers() (func(models.UserChange), func(models.SignalMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.onUsers, s.onSignals
}

func TestSessionUsecase_JoinAndLeave(t *testing.T) {
	store := memory.NewDocumentStore()
	f := newSessionFixture(t, store)

	ctx := context.Background()

	require.NoError(t, f.session.JoinRoom(ctx, testRoom, "alice"))

	status := f.session.Status()
	assert.True(t, status.Joined)
	assert.Equal(t, testRoom, status.RoomID)
	assert.Equal(t, "alice", status.ScreenName)
	assert.Equal(t, "Connected to lobby as alice", status.Message)
	assert.NotEmpty(t, status.ParticipantID)

	users := store.Users(testRoom)
	require.Len(t, users, 1)
	assert.Equal(t, status.ParticipantID, users[0].ID)
	assert.True(t, users[0].Active)
	assert.False(t, users[0].JoinedAt.IsZero())

	assert.Equal(t, 2, f.session.ActiveSubscriptions())
	assert.Equal(t, 2, store.Subscriptions(testRoom))

	f.session.LeaveRoom(ctx)

	assert.Zero(t, f.session.ActiveSubscriptions())
	assert.Zero(t, store.Subscriptions(testRoom))
	assert.Empty(t, store.Users(testRoom))
	assert.True(t, f.track.stopped.Load())
	assert.False(t, f.session.Status().Joined)
	assert.Equal(t, statusLeft, f.session.Status().Message)
}

func TestSessionUsecase_LeaveThenJoinLeavesNoStaleSubscriptions(t *testing.T) {
	store := memory.NewDocumentStore()
	f := newSessionFixture(t, store)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.session.JoinRoom(ctx, testRoom, "alice"))
		assert.Equal(t, 2, f.session.ActiveSubscriptions())
		assert.Equal(t, 2, store.Subscriptions(testRoom))

		f.session.LeaveRoom(ctx)
		assert.Zero(t, f.session.ActiveSubscriptions())
		assert.Zero(t, store.Subscriptions(testRoom))
	}
}

func TestSessionUsecase_RejectsSecondJoin(t *testing.T) {
	store := memory.NewDocumentStore()
	f := newSessionFixture(t, store)

	ctx := context.Background()

	require.NoError(t, f.session.JoinRoom(ctx, testRoom, "alice"))

	err := f.session.JoinRoom(ctx, "other", "alice")
	require.ErrorIs(t, err, domain.ErrAlreadyJoined)

	assert.Equal(t, testRoom, f.session.Status().RoomID)
	assert.Equal(t, 2, f.session.ActiveSubscriptions())
	assert.Len(t, store.Users(testRoom), 1)
	assert.Empty(t, store.Users("other"))
	assert.Equal(t, int32(1), f.device.acquired.Load())
}

func TestSessionUsecase_MediaErrorAbortsJoin(t *testing.T) {
	for _, mediaErr := range []error{domain.ErrPermissionDenied, domain.ErrDeviceNotFound, domain.ErrUnsupported} {
		t.Run(mediaErr.Error(), func(t *testing.T) {
			store := memory.NewDocumentStore()
			f := newSessionFixture(t, store)
			f.device.err = mediaErr

			err := f.session.JoinRoom(context.Background(), testRoom, "alice")
			require.ErrorIs(t, err, mediaErr)
			assert.True(t, domain.IsMediaError(err))

			assert.Empty(t, store.Users(testRoom))
			assert.Zero(t, store.Subscriptions(testRoom))
			assert.Zero(t, f.session.ActiveSubscriptions())
			assert.False(t, f.session.Status().Joined)
		})
	}
}

func TestSessionUsecase_StoreUnavailableAbortsJoin(t *testing.T) {
	store := unavailableStore{DocumentStore: memory.NewDocumentStore()}
	f := newSessionFixture(t, store)

	err := f.session.JoinRoom(context.Background(), testRoom, "alice")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	assert.True(t, f.track.stopped.Load())
	assert.Zero(t, f.session.ActiveSubscriptions())
	assert.False(t, f.session.Status().Joined)
}

func TestSessionUsecase_LeaveIsIdempotent(t *testing.T) {
	store := memory.NewDocumentStore()
	f := newSessionFixture(t, store)

	ctx := context.Background()

	f.session.LeaveRoom(ctx)
	assert.Equal(t, statusIdle, f.session.Status().Message)

	require.NoError(t, f.session.JoinRoom(ctx, testRoom, ""))
	assert.Equal(t, defaultScreenName, f.session.Status().ScreenName)

	f.session.LeaveRoom(ctx)
	f.session.LeaveRoom(ctx)

	assert.Zero(t, f.session.ActiveSubscriptions())
	assert.Empty(t, store.Users(testRoom))
}

func TestSessionUsecase_TwoParticipantsNegotiate(t *testing.T) {
	store := memory.NewDocumentStore()
	alice := newSessionFixture(t, store)
	bob := newSessionFixture(t, store)

	ctx := context.Background()

	require.NoError(t, alice.session.JoinRoom(ctx, testRoom, "alice"))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, bob.session.JoinRoom(ctx, testRoom, "bob"))

	require.Eventually(t, func() bool { return len(alice.session.Sessions()) == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return len(bob.session.Sessions()) == 1 }, waitFor, tick)

	aliceToBob := alice.session.Sessions()[0]
	bobToAlice := bob.session.Sessions()[0]

	assert.Equal(t, bob.session.Status().ParticipantID, aliceToBob.RemoteID)
	assert.Equal(t, domain.PeerRoleInitiator, aliceToBob.Role())
	assert.Equal(t, domain.PeerRoleResponder, bobToAlice.Role())
	require.Eventually(t, func() bool { return bobToAlice.RemoteName() == "alice" }, waitFor, tick)
	assert.Equal(t, "bob", aliceToBob.RemoteName())

	assert.Equal(t, 1, alice.factory.created())
	assert.Equal(t, 1, bob.factory.created())

	// offer дошел до bob, answer до alice
	require.Eventually(t, func() bool { return bob.factory.conn(0).remoteDescriptionSets() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return alice.factory.conn(0).remoteDescriptionSets() == 1 }, waitFor, tick)

	// обработанные сигналы удаляются
	require.Eventually(t, func() bool { return store.PendingSignals(testRoom) == 0 }, waitFor, tick)

	roster := alice.session.Presence().Roster()
	require.Len(t, roster.Entries, 2)
	assert.True(t, roster.Entries[0].IsLocal)
	assert.Equal(t, "bob", roster.Entries[1].Name)

	bob.session.LeaveRoom(ctx)

	require.Eventually(t, func() bool { return len(alice.session.Sessions()) == 0 }, waitFor, tick)
	assert.Equal(t, domain.PeerStateClosed, aliceToBob.State())
	assert.True(t, alice.factory.conn(0).isClosed())
}

func TestSessionUsecase_MuteIsReflectedInRoster(t *testing.T) {
	store := memory.NewDocumentStore()
	f := newSessionFixture(t, store)

	require.NoError(t, f.session.JoinRoom(context.Background(), testRoom, "alice"))

	f.session.SetMuted(true)
	assert.True(t, f.session.Status().Muted)
	assert.False(t, f.track.Enabled())

	roster := f.session.Presence().Roster()
	require.NotEmpty(t, roster.Entries)
	assert.True(t, roster.Entries[0].IsMuted)

	assert.False(t, f.session.ToggleMuted())
	assert.True(t, f.track.Enabled())
}

func TestSessionUsecase_CallbackAfterLeaveCreatesNoSessions(t *testing.T) {
	store := &capturingStore{DocumentStore: memory.NewDocumentStore()}
	f := newSessionFixture(t, store)

	ctx := context.Background()

	require.NoError(t, f.session.JoinRoom(ctx, testRoom, "alice"))
	selfID := f.session.Status().ParticipantID

	onUsers, onSignals := store.handlers()
	require.NotNil(t, onUsers)
	require.NotNil(t, onSignals)

	f.session.LeaveRoom(ctx)
	require.Zero(t, f.session.ActiveSubscriptions())

	// события, которые доставка уже начала, когда выполнялся выход
	onUsers(models.UserChange{
		Type: models.ChangeAdded,
		Participant: models.Participant{
			ID:         "late",
			ScreenName: "bob",
			JoinedAt:   time.Now().Add(time.Hour),
			Active:     true,
		},
	})
	onSignals(models.SignalMessage{
		ID:   "late-offer",
		Type: models.SignalOffer,
		SDP:  &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 late offer"},
		From: "caller",
		To:   selfID,
	})

	assert.Zero(t, f.factory.created())
	assert.Empty(t, f.session.Sessions())
}
