package memory

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qrave1/roomspeak-mesh/internal/domain"
)

func TestPeerSessionRepository_GetOrCreateOnce(t *testing.T) {
	repo := NewPeerSessionRepository()

	var (
		creates atomic.Int32
		wg      sync.WaitGroup
	)

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, _, err := repo.GetOrCreate("b", func() (*domain.PeerSession, error) {
				creates.Add(1)

				return domain.NewPeerSession("b", "bob", domain.PeerRoleInitiator, nil), nil
			})
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.EqualValues(t, 1, creates.Load())
	assert.Equal(t, 1, repo.Count())

	session, ok := repo.Get("b")
	require.True(t, ok)

	for _, s := range repo.Close() {
		s.Close()
	}

	assert.Zero(t, repo.Count())
	assert.False(t, session.Alive())
}

func TestPeerSessionRepository_CreateError(t *testing.T) {
	repo := NewPeerSessionRepository()

	_, created, err := repo.GetOrCreate("b", func() (*domain.PeerSession, error) {
		return nil, errors.New("no connection")
	})
	require.Error(t, err)
	assert.False(t, created)
	assert.Zero(t, repo.Count())

	_, ok := repo.Remove("b")
	assert.False(t, ok)
}

func TestPeerSessionRepository_ListSorted(t *testing.T) {
	repo := NewPeerSessionRepository()

	for _, id := range []string{"c", "a", "b"} {
		_, created, err := repo.GetOrCreate(id, func() (*domain.PeerSession, error) {
			return domain.NewPeerSession(id, id, domain.PeerRoleResponder, nil), nil
		})
		require.NoError(t, err)
		require.True(t, created)
	}

	list := repo.List()
	require.Len(t, list, 3)
	assert.Equal(t, "a", list[0].RemoteID)
	assert.Equal(t, "c", list[2].RemoteID)

	for _, s := range repo.Close() {
		s.Close()
	}
}

func TestPeerSessionRepository_CloseRefusesCreation(t *testing.T) {
	repo := NewPeerSessionRepository()

	_, _, err := repo.GetOrCreate("a", func() (*domain.PeerSession, error) {
		return domain.NewPeerSession("a", "amy", domain.PeerRoleResponder, nil), nil
	})
	require.NoError(t, err)

	sessions := repo.Close()
	require.Len(t, sessions, 1)
	sessions[0].Close()

	called := false
	_, created, err := repo.GetOrCreate("b", func() (*domain.PeerSession, error) {
		called = true

		return domain.NewPeerSession("b", "bob", domain.PeerRoleResponder, nil), nil
	})
	require.ErrorIs(t, err, ErrRepositoryClosed)
	assert.False(t, created)
	assert.False(t, called)
	assert.Zero(t, repo.Count())
	assert.Empty(t, repo.Close())
}

func TestPeerSessionRepository_RemoveIf(t *testing.T) {
	repo := NewPeerSessionRepository()

	first, _, err := repo.GetOrCreate("a", func() (*domain.PeerSession, error) {
		return domain.NewPeerSession("a", "amy", domain.PeerRoleResponder, nil), nil
	})
	require.NoError(t, err)

	_, ok := repo.RemoveIf("a", func(*domain.PeerSession) bool { return false })
	assert.False(t, ok)
	assert.Equal(t, 1, repo.Count())

	_, ok = repo.RemoveIf("missing", func(*domain.PeerSession) bool { return true })
	assert.False(t, ok)

	removed, ok := repo.RemoveIf("a", func(s *domain.PeerSession) bool { return s == first })
	require.True(t, ok)
	assert.Same(t, first, removed)
	assert.Zero(t, repo.Count())
}
