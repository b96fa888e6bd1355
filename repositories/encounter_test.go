package repositories

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gameroom-lab/domain"
	apperrors "gameroom-lab/errors"
)

func storedEncounter(id, roomCode string) domain.Encounter {
	return domain.Encounter{
		ID:       id,
		Name:     "Ambush",
		Kind:     domain.KindConflict,
		RoomCode: roomCode,
		Status:   domain.StatusActive,
		Participants: []domain.EncounterParticipant{
			{CharacterID: "c1", Name: "Alva", Type: domain.TypeHero, Side: domain.SideA,
				Status: domain.ParticipantActive, MainActions: 1, FastActions: 1},
		},
		TurnOrder: []string{"c1"},
		Round:     2,
		Scene:     1,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestEncounterRepository_SaveAndGet(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewEncounterRepository(openTestDB(t), slog.Default())
	room := "Camp-KOD:12345-000001"

	saved := storedEncounter("e1", room)
	req.NoError(repo.Save(ctx, saved))

	loaded, err := repo.Get(ctx, room, "e1")
	req.NoError(err)
	req.Equal(saved.ID, loaded.ID)
	req.Equal(saved.Status, loaded.Status)
	req.Equal(saved.TurnOrder, loaded.TurnOrder)
	req.Equal(saved.Round, loaded.Round)
	req.Len(loaded.Participants, 1)
	req.Equal("Alva", loaded.Participants[0].Name)
}

func TestEncounterRepository_SaveOverwritesSnapshot(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewEncounterRepository(openTestDB(t), slog.Default())
	room := "Camp-KOD:12345-000001"

	enc := storedEncounter("e1", room)
	req.NoError(repo.Save(ctx, enc))
	enc.Status = domain.StatusResolved
	req.NoError(repo.Save(ctx, enc))

	loaded, err := repo.Get(ctx, room, "e1")
	req.NoError(err)
	req.Equal(domain.StatusResolved, loaded.Status)
}

func TestEncounterRepository_Get_Missing(t *testing.T) {
	req := require.New(t)
	repo := NewEncounterRepository(openTestDB(t), slog.Default())

	_, err := repo.Get(context.Background(), "Camp-KOD:12345-000001", "ghost")

	req.ErrorIs(err, apperrors.ErrNotFound)
}

func TestEncounterRepository_ListByRoom_IsRoomScoped(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repo := NewEncounterRepository(openTestDB(t), slog.Default())
	room := "Camp-KOD:12345-000001"
	other := "Journey-KOD:54321-000002"

	req.NoError(repo.Save(ctx, storedEncounter("e1", room)))
	req.NoError(repo.Save(ctx, storedEncounter("e2", room)))
	req.NoError(repo.Save(ctx, storedEncounter("e3", other)))

	encounters, err := repo.ListByRoom(ctx, room)
	req.NoError(err)
	req.Len(encounters, 2)
	for _, enc := range encounters {
		req.Equal(room, enc.RoomCode)
	}

	empty, err := repo.ListByRoom(ctx, "Empty-KOD:11111-000003")
	req.NoError(err)
	req.Empty(empty)
}
