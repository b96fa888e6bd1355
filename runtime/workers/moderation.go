package workers

import (
	"context"
	"log/slog"

	"gameroom-lab/domain/event"
	"gameroom-lab/moderation"
)

// ModerationWorker sits between the room workers and the fanout. Raw chat
// events are censored and language-tagged before any client sees them;
// every other event passes through untouched. Keeping the pipeline single
// means chat stays ordered relative to the room's other events.
type ModerationWorker struct {
	moderator moderation.Moderator
	raw       chan event.DomainEvent
	events    chan event.DomainEvent
	log       *slog.Logger
}

func NewModerationWorker(moderator moderation.Moderator, raw, events chan event.DomainEvent, log *slog.Logger) *ModerationWorker {
	return &ModerationWorker{moderator: moderator, raw: raw, events: events, log: log}
}

func (w *ModerationWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping moderation worker")
			return nil
		case e, ok := <-w.raw:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}

			out := e
			if posted, isChat := e.(event.ChatPosted); isChat {
				out = w.toSanitized(posted)
			}

			select {
			case <-ctx.Done():
				w.log.Debug("Stopping moderation worker")
				return nil
			case w.events <- out:
			}
		}
	}
}

func (w *ModerationWorker) toSanitized(posted event.ChatPosted) event.ChatMessage {
	sanitized := w.moderator.Censor(posted.Content)
	language := moderation.DetectLanguage(posted.Content)
	return event.NewChatMessage(posted.RoomCode(), posted.ID, posted.UserID, sanitized, language, posted.At)
}
