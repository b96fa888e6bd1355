//go:generate go run go.uber.org/mock/mockgen -source=character.go -destination=../mocks/mock_character_store.go -package=mocks
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

// ICharacterStore is the coordinator's read-only view of the character
// catalog. Writing character sheets belongs to another service; only the
// seed tool writes here.
type ICharacterStore interface {
	FindSummaries(ctx context.Context, ids []string) ([]domain.CharacterCard, error)
	LoadAvatar(ctx context.Context, id string) (string, error)
}

type CharacterStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewCharacterStore(db *badger.DB, log *slog.Logger) CharacterStore {
	return CharacterStore{db: db, log: log}
}

func characterKey(id string) []byte {
	return []byte(fmt.Sprintf("char:%s", id))
}

// FindSummaries returns the stored summaries for the requested ids.
// Unknown ids are simply absent from the result; callers decide whether a
// partial hit is an error.
func (s CharacterStore) FindSummaries(_ context.Context, ids []string) ([]domain.CharacterCard, error) {
	var cards []domain.CharacterCard
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(characterKey(id))
			if err == badger.ErrKeyNotFound {
				s.log.Debug("Character not found", "id", id)
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				var card domain.CharacterCard
				if err := json.Unmarshal(val, &card); err != nil {
					return err
				}
				cards = append(cards, card)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// LoadAvatar resolves just the avatar URL of one character.
func (s CharacterStore) LoadAvatar(ctx context.Context, id string) (string, error) {
	cards, err := s.FindSummaries(ctx, []string{id})
	if err != nil {
		return "", err
	}
	if len(cards) == 0 {
		return "", apperrors.ErrNotFound
	}
	return cards[0].Avatar, nil
}

// Put stores one summary. Used by cmd/seed and tests.
func (s CharacterStore) Put(card domain.CharacterCard) error {
	bytes, err := json.Marshal(card)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(characterKey(card.ID), bytes)
	})
}
