//go:generate go run go.uber.org/mock/mockgen -source=chat.go -destination=../mocks/mock_chat_archive.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// IChatArchive persists sanitized room chat for the /find search and the
// viewer tool.
type IChatArchive interface {
	Store(message ArchivedMessage) error
	Recent(roomCode string, cursor *string) ([]ArchivedMessage, *string, error)
}

// ArchivedMessage is the disk shape of one sanitized chat message.
type ArchivedMessage struct {
	ID       uuid.UUID `json:"id"`
	RoomCode string    `json:"roomCode"`
	UserID   string    `json:"userId"`
	Content  string    `json:"message"`
	Language string    `json:"language,omitempty"`
	At       time.Time `json:"at"`
}

type ChatArchive struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewChatArchive(db *badger.DB, log *slog.Logger, limit *int) ChatArchive {
	return ChatArchive{db: db, log: log, limit: limit}
}

// Store persists a message under "msg:{room}:{timestamp_padded}:{uuid}":
//  1. 19-digit zero padding keeps keys chronologically sorted
//     (lexicographical order).
//  2. The UUID suffix disambiguates two messages landing on the same
//     nanosecond.
func (a ChatArchive) Store(message ArchivedMessage) error {
	key := fmt.Sprintf("msg:%s:%019d:%s",
		message.RoomCode,
		message.At.UnixNano(),
		message.ID,
	)
	bytes, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
}

// Recent pages backwards through a room's archive, newest first. The
// returned cursor is the key suffix of the last message; passing it back
// continues the scan. Thanks to the padded timestamp in the key, order is
// free.
func (a ChatArchive) Recent(roomCode string, cursor *string) ([]ArchivedMessage, *string, error) {
	var messages []ArchivedMessage
	var lastKey string

	err := a.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%s:", roomCode)
		prefix := []byte(prefixStr)

		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Seek past the newest possible timestamp, then walk backwards.
			seekKey = append(prefix, []byte("9999999999999999999")...)
		} else {
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)
		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if a.limit != nil && len(messages) == *a.limit {
				a.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *a.limit))
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			err := item.Value(func(val []byte) error {
				var message ArchivedMessage
				if err := json.Unmarshal(val, &message); err != nil {
					return err
				}
				messages = append(messages, message)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}
