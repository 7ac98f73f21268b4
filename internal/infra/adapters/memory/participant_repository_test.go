package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/qrave1/roomspeak-mesh/internal/domain/models"
)

func TestParticipantRepository(t *testing.T) {
	repo := NewParticipantRepository()

	assert.True(t, repo.Add(models.Participant{ID: "a", ScreenName: "alice"}))
	assert.False(t, repo.Add(models.Participant{ID: "a", ScreenName: "again"}))

	assert.False(t, repo.Update(models.Participant{ID: "b"}))
	assert.True(t, repo.Update(models.Participant{ID: "a", ScreenName: "alice2"}))

	p, ok := repo.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alice2", p.ScreenName)

	assert.True(t, repo.Remove("a"))
	assert.False(t, repo.Remove("a"))

	repo.Add(models.Participant{ID: "c"})
	repo.Clear()
	assert.Empty(t, repo.List())
}
