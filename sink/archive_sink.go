// Package sink holds the permanent event consumers fed by the fanout:
// durable chat archiving and the full-text index.
package sink

import (
	"context"
	"log/slog"

	"gameroom-lab/domain/event"
	"gameroom-lab/repositories"
)

// ArchiveSink persists every sanitized chat message. Raw (pre-moderation)
// chat never reaches the fanout, so the archive only ever holds censored
// content.
type ArchiveSink struct {
	archive repositories.IChatArchive
	log     *slog.Logger
}

func NewArchiveSink(archive repositories.IChatArchive, log *slog.Logger) ArchiveSink {
	return ArchiveSink{archive: archive, log: log}
}

func (s ArchiveSink) Consume(_ context.Context, e event.DomainEvent) error {
	msg, ok := e.(event.ChatMessage)
	if !ok {
		return nil
	}
	return s.archive.Store(repositories.ArchivedMessage{
		ID:       msg.ID,
		RoomCode: msg.RoomCode(),
		UserID:   msg.UserID,
		Content:  msg.Content,
		Language: msg.Language,
		At:       msg.At,
	})
}
