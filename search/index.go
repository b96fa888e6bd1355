// Package search maintains a full-text index over archived chat and
// answers the in-room /find queries.
package search

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/blugelabs/bluge"

	"gameroom-lab/domain/event"
)

// MessageIndex wraps a Bluge writer. It is both a permanent event sink
// (indexing every sanitized chat message) and the query side behind the
// /find chat command. Index writes and searches may run concurrently;
// the lock only guards writer access.
type MessageIndex struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

func NewMessageIndex(path string, log *slog.Logger) (*MessageIndex, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, err
	}
	return &MessageIndex{writer: writer, log: log}, nil
}

func (x *MessageIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.writer.Close()
}

// Consume indexes sanitized chat messages and ignores everything else.
func (x *MessageIndex) Consume(_ context.Context, e event.DomainEvent) error {
	msg, ok := e.(event.ChatMessage)
	if !ok {
		return nil
	}

	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewKeywordField("room", msg.RoomCode())).
		AddField(bluge.NewKeywordField("userId", msg.UserID).StoreValue()).
		AddField(bluge.NewTextField("content", msg.Content).StoreValue()).
		AddField(bluge.NewKeywordField("at", msg.At.UTC().Format(time.RFC3339Nano)).StoreValue())

	x.mu.Lock()
	defer x.mu.Unlock()
	return x.writer.Update(doc.ID(), doc)
}

// Search matches terms against one room's messages only. Results carry the
// stored fields needed for display, ranked by relevance.
func (x *MessageIndex) Search(ctx context.Context, roomCode, terms string, limit int) ([]event.SearchHit, error) {
	reader, err := x.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			x.log.Warn("Closing index reader failed", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(roomCode).SetField("room"))

	it, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var hits []event.SearchHit
	for {
		match, err := it.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}

		var hit event.SearchHit
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case "userId":
				hit.UserID = string(value)
			case "content":
				hit.Content = string(value)
			case "at":
				if at, parseErr := time.Parse(time.RFC3339Nano, string(value)); parseErr == nil {
					hit.At = at
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
