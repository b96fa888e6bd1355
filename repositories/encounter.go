//go:generate go run go.uber.org/mock/mockgen -source=encounter.go -destination=../mocks/mock_encounter_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"gameroom-lab/domain"
	apperrors "gameroom-lab/errors"
)

// IEncounterRepository mirrors in-memory encounters to durable storage.
// The in-memory copy stays authoritative; writes are best-effort
// (write-through on every mutation).
type IEncounterRepository interface {
	Save(ctx context.Context, encounter domain.Encounter) error
	Get(ctx context.Context, roomCode, id string) (domain.Encounter, error)
	ListByRoom(ctx context.Context, roomCode string) ([]domain.Encounter, error)
}

type EncounterRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEncounterRepository(db *badger.DB, log *slog.Logger) EncounterRepository {
	return EncounterRepository{db: db, log: log}
}

// encounterKey scopes snapshots by room so a room's history is one prefix
// scan. Rooms are independent, so there is a single writer per prefix.
func encounterKey(roomCode, id string) []byte {
	return []byte(fmt.Sprintf("enc:%s:%s", roomCode, id))
}

func (r EncounterRepository) Save(_ context.Context, encounter domain.Encounter) error {
	bytes, err := json.Marshal(encounter)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(encounterKey(encounter.RoomCode, encounter.ID), bytes)
	})
}

func (r EncounterRepository) Get(_ context.Context, roomCode, id string) (domain.Encounter, error) {
	var encounter domain.Encounter
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(encounterKey(roomCode, id))
		if err == badger.ErrKeyNotFound {
			return apperrors.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &encounter)
		})
	})
	return encounter, err
}

func (r EncounterRepository) ListByRoom(_ context.Context, roomCode string) ([]domain.Encounter, error) {
	var encounters []domain.Encounter
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("enc:%s:", roomCode))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var encounter domain.Encounter
				if err := json.Unmarshal(val, &encounter); err != nil {
					return err
				}
				encounters = append(encounters, encounter)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return encounters, err
}
