package workers

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"gameroom-lab/contract"
	"gameroom-lab/domain"
	"gameroom-lab/domain/event"
	apperrors "gameroom-lab/errors"
	"gameroom-lab/repositories"
)

// Searcher answers /find queries against the chat archive.
type Searcher interface {
	Search(ctx context.Context, roomCode, terms string, limit int) ([]event.SearchHit, error)
}

const searchResultLimit = 10

// RoomWorker owns every piece of per-room state: membership, selection
// pools, and the active encounter. It consumes the room's command channel
// in a single goroutine, which is the serialization point that keeps
// read-check-write sequences (initiative resolution, auto-advance) atomic
// with respect to other messages for the same room.
//
// A rejected command emits an error notice to the originating connection
// and leaves state untouched; the worker never stops on a bad message.
type RoomWorker struct {
	room       *domain.Room
	selections *domain.SelectionPools
	encounter  *domain.Encounter

	commands   chan domain.Command
	events     chan event.DomainEvent
	registry   contract.IRegistry
	characters repositories.ICharacterStore
	encounters repositories.IEncounterRepository
	searcher   Searcher

	rng     *rand.Rand
	newID   func() string
	log     *slog.Logger
	release func()
}

// NewRoomWorker wires a worker for one room code. release is invoked once
// when the room dies (last participant left, or deleted) so the owner can
// drop its entry. The registry audience is maintained here, after command
// validation, so a rejected join or leave never desyncs routing from
// membership.
func NewRoomWorker(
	roomCode string,
	commands chan domain.Command,
	events chan event.DomainEvent,
	registry contract.IRegistry,
	characters repositories.ICharacterStore,
	encounters repositories.IEncounterRepository,
	searcher Searcher,
	rng *rand.Rand,
	log *slog.Logger,
	release func(),
) *RoomWorker {
	return &RoomWorker{
		room:       domain.NewRoom(roomCode),
		selections: domain.NewSelectionPools(),
		commands:   commands,
		events:     events,
		registry:   registry,
		characters: characters,
		encounters: encounters,
		searcher:   searcher,
		rng:        rng,
		newID:      uuid.NewString,
		log:        log.With("room", roomCode),
		release:    release,
	}
}

// Run consumes the room's command channel until the room dies or the
// context is canceled. release is called only on a genuine room closure:
// after a panic the supervisor restarts Run and the room stays routed,
// with membership intact.
func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker")
			return nil
		case cmd, ok := <-w.commands:
			if !ok {
				w.release()
				return nil
			}
			if closed := w.handle(ctx, cmd); closed {
				w.log.Info("Room closed")
				w.release()
				return nil
			}
		}
	}
}

// handle applies one command. It returns true when the room ceased to
// exist and the worker should exit.
func (w *RoomWorker) handle(ctx context.Context, cmd domain.Command) bool {
	switch c := cmd.(type) {
	case domain.JoinRoom:
		return w.handleJoin(ctx, c)
	case domain.LeaveRoom:
		if c.UserID != c.Actor.UserID {
			w.reject(ctx, c, apperrors.ErrAuthorizationMismatch, "Authorization error: UserId does not match")
			return false
		}
		return w.handleLeave(ctx, c.Conn)
	case domain.Disconnect:
		return w.handleLeave(ctx, c.Conn)
	case domain.DeleteRoom:
		return w.handleDelete(ctx, c)
	case domain.TransferFacilitator:
		w.handleTransfer(ctx, c)
	case domain.PostChat:
		w.handleChat(ctx, c)
	case domain.RollDice:
		w.handleDice(ctx, c)
	case domain.PostDetailedRoll:
		w.emit(ctx, event.NewDetailedDiceRolled(w.room.Code, c.Payload))
	case domain.SetSelection:
		w.handleSelection(ctx, c)
	case domain.ClearSelection:
		w.handleClearSelection(ctx, c)
	case domain.StartEncounter:
		w.handleStartEncounter(ctx, c)
	case domain.SubmitInitiative:
		w.handleSubmitInitiative(ctx, c)
	case domain.RequestNextRound:
		w.handleNextRound(ctx, c)
	case domain.RequestNextScene:
		w.handleNextScene(ctx, c)
	case domain.EndTurn:
		w.handleEndTurn(ctx, c)
	case domain.UseAction:
		w.handleUseAction(ctx, c)
	case domain.DeclareAttack:
		w.handleDeclareAttack(ctx, c)
	case domain.WaiveReaction:
		w.handleWaiveReaction(ctx, c)
	case domain.SetReactionTargets:
		w.handleSetReactionTargets(ctx, c)
	case domain.EndEncounter:
		w.handleEndEncounter(ctx, c)
	case domain.NotifyCharacterTransfer:
		w.emit(ctx, event.NewCharacterTransferred(w.room.Code, c.Transfer))
	default:
		w.log.Warn("Unknown command", "command", fmt.Sprintf("%T", cmd))
	}
	return false
}

// --- Room lifecycle ---

// handleJoin admits the connection to the room. Returns true when the
// room should close: a rejected join to an otherwise empty room leaves
// no one behind, so the worker must not stay routed.
func (w *RoomWorker) handleJoin(ctx context.Context, cmd domain.JoinRoom) bool {
	if cmd.UserID != cmd.Actor.UserID {
		w.reject(ctx, cmd, apperrors.ErrAuthorizationMismatch, "Authorization error: UserId does not match")
		return len(w.room.Participants) == 0
	}

	created := w.room.Join(cmd.Conn, cmd.Actor)
	w.registry.JoinRoom(cmd.Conn, w.room.Code)
	if created {
		w.log.Info("Room created", "user", cmd.UserID)
		w.emit(ctx, event.NewRoomCreated(w.room.Code, cmd.Conn))
	} else {
		w.log.Info("User joined room", "user", cmd.UserID)
		w.emit(ctx, event.NewRoomJoined(w.room.Code, cmd.Conn))
	}

	w.broadcastRoster(ctx)
	w.broadcastSelections(ctx, domain.CategoryHero, domain.CategoryNPC, domain.CategoryMonster)
	return false
}

// handleLeave covers explicit leaves and connection loss. Returns true
// when the room emptied out.
func (w *RoomWorker) handleLeave(ctx context.Context, connID string) bool {
	res := w.room.Leave(connID)
	if !res.Removed {
		return false
	}
	w.registry.LeaveRoom(connID, w.room.Code)

	if res.Empty {
		w.log.Info("Room is now empty and has been closed")
		return true
	}

	if res.NewFacilitator != nil {
		w.log.Info("Facilitator left, promoting successor", "user", res.NewFacilitator.UserID)
		w.emit(ctx, event.NewNewFacilitator(w.room.Code, res.NewFacilitator.UserID))
	}

	for _, category := range w.selections.RemoveUser(res.UserID) {
		w.broadcastSelections(ctx, category)
	}

	w.emit(ctx, event.NewUserLeft(w.room.Code, res.UserID))
	w.broadcastRoster(ctx)
	return false
}

func (w *RoomWorker) handleDelete(ctx context.Context, cmd domain.DeleteRoom) bool {
	if !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can delete the room.")
		return false
	}
	w.log.Info("Room deleted by facilitator")

	// The audience is purged as soon as this worker releases the room, so
	// the farewell must carry its recipients explicitly.
	conns := lo.Map(w.room.Participants, func(p domain.Participant, _ int) string {
		return p.ConnectionID
	})
	w.emit(ctx, event.NewRoomDeleted(w.room.Code, conns...))
	return true
}

func (w *RoomWorker) handleTransfer(ctx context.Context, cmd domain.TransferFacilitator) {
	newMaster, err := w.room.TransferFacilitator(cmd.Conn, cmd.NewFacilitatorUserID)
	if err == apperrors.ErrPermissionDenied {
		w.reject(ctx, cmd, err, "Only the Room Master can transfer the role.")
		return
	}
	if err != nil {
		w.reject(ctx, cmd, err, "Invalid user to transfer role to.")
		return
	}

	w.log.Info("Facilitator role transferred", "to", newMaster.UserID)
	w.emit(ctx, event.NewNewFacilitator(w.room.Code, newMaster.UserID))
	w.broadcastRoster(ctx)
}

// --- Chat & dice ---

func (w *RoomWorker) handleChat(ctx context.Context, cmd domain.PostChat) {
	if cmd.UserID != cmd.Actor.UserID {
		w.reject(ctx, cmd, apperrors.ErrAuthorizationMismatch, "Authorization error: UserId does not match")
		return
	}

	if terms, ok := searchTerms(cmd.Content); ok && w.searcher != nil {
		hits, err := w.searcher.Search(ctx, w.room.Code, terms, searchResultLimit)
		if err != nil {
			w.reject(ctx, cmd, err, "Search failed")
			return
		}
		w.emit(ctx, event.NewSearchResults(w.room.Code, cmd.Conn, terms, hits))
		return
	}

	id, err := uuid.Parse(cmd.MessageID)
	if cmd.MessageID == "" || err != nil {
		id = uuid.New()
	}
	at := cmd.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	w.emit(ctx, event.NewChatPosted(w.room.Code, id, cmd.UserID, cmd.Content, at))
}

// searchTerms extracts the query of a "/find ..." chat command.
func searchTerms(content string) (string, bool) {
	if !strings.HasPrefix(content, "/find ") {
		return "", false
	}
	terms := strings.TrimSpace(strings.TrimPrefix(content, "/find "))
	return terms, terms != ""
}

func (w *RoomWorker) handleDice(ctx context.Context, cmd domain.RollDice) {
	if cmd.UserID != cmd.Actor.UserID {
		w.reject(ctx, cmd, apperrors.ErrAuthorizationMismatch, "Authorization error: UserId does not match")
		return
	}

	audience := event.ToRoom()
	if cmd.Hidden {
		// A hidden roll is visible to the facilitator and the roller only.
		// When the facilitator rolls, both are the same connection.
		audience = event.ToConnections(lo.Uniq([]string{w.room.FacilitatorConn, cmd.Conn})...)
	}
	w.emit(ctx, event.DiceRolled{
		Room:     w.room.Code,
		To:       audience,
		UserID:   cmd.UserID,
		UserName: cmd.UserName,
		Roll:     cmd.Roll,
		Hidden:   cmd.Hidden,
	})
}

// --- Selection pools ---

func (w *RoomWorker) handleSelection(ctx context.Context, cmd domain.SetSelection) {
	cards, err := w.characters.FindSummaries(ctx, cmd.CharacterIDs)
	if err != nil {
		w.reject(ctx, cmd, err, "Error selecting characters")
		return
	}
	if len(cards) != len(cmd.CharacterIDs) {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Character not found")
		return
	}

	for _, card := range cards {
		if domain.CharacterType(cmd.Category) != card.Type {
			w.reject(ctx, cmd, apperrors.ErrNotFound, "Character not found")
			return
		}
		// Hero cards must belong to the submitting player; NPC and Monster
		// pools are meant for the facilitator and skip the ownership check.
		if cmd.Category == domain.CategoryHero && card.OwnerID != cmd.Actor.UserID {
			w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "You can only select your own character")
			return
		}
	}

	w.selections.Set(cmd.Category, cmd.Actor.UserID, cards)
	w.broadcastSelections(ctx, cmd.Category)
}

func (w *RoomWorker) handleClearSelection(ctx context.Context, cmd domain.ClearSelection) {
	if w.selections.ClearHero(cmd.Actor.UserID) {
		w.broadcastSelections(ctx, domain.CategoryHero)
	}
}

// --- Encounter lifecycle ---

func (w *RoomWorker) handleStartEncounter(ctx context.Context, cmd domain.StartEncounter) {
	if !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can start an event.")
		return
	}

	ids := lo.Map(cmd.Participants, func(seed domain.EncounterSeed, _ int) string {
		return seed.CharacterID
	})
	sides := lo.SliceToMap(cmd.Participants, func(seed domain.EncounterSeed) (string, domain.Side) {
		return seed.CharacterID, seed.Side
	})

	cards, err := w.characters.FindSummaries(ctx, ids)
	if err != nil {
		w.reject(ctx, cmd, err, "Error starting event")
		return
	}
	if len(cards) != len(ids) {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Character not found")
		return
	}

	members := lo.Map(cards, func(card domain.CharacterCard, _ int) domain.EncounterParticipant {
		return domain.EncounterParticipant{
			CharacterID: card.ID,
			Name:        card.Name,
			Avatar:      card.Avatar,
			Type:        card.Type,
			OwnerID:     card.OwnerID,
			Side:        sides[card.ID],
		}
	})

	actor := w.room.Member(cmd.Conn)
	createdBy := ""
	if actor != nil {
		createdBy = actor.UserID
	}

	w.encounter = domain.NewEncounter(w.newID(), cmd.Name, cmd.Kind, w.room.Code, createdBy, members)
	w.log.Info("Encounter started", "encounter", w.encounter.ID, "name", cmd.Name, "kind", cmd.Kind)

	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterStarted(w.room.Code, w.encounter.Snapshot()))

	if cmd.Kind == domain.KindConflict {
		w.emit(ctx, event.NewInitiativeRequested(w.room.Code, w.encounter.ID))
	}
}

// activeEncounter resolves the room's encounter, matching the claimed id
// when the command carries one.
func (w *RoomWorker) activeEncounter(encounterID string) *domain.Encounter {
	if w.encounter == nil {
		return nil
	}
	if encounterID != "" && w.encounter.ID != encounterID {
		return nil
	}
	return w.encounter
}

func (w *RoomWorker) handleSubmitInitiative(ctx context.Context, cmd domain.SubmitInitiative) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}

	if err := enc.SubmitInitiative(cmd.CharacterID, cmd.Initiative); err != nil {
		w.reject(ctx, cmd, err, "Participant not found in event")
		return
	}

	if enc.AllRolled() {
		// The stat lookup and the sort run inside this worker goroutine, so
		// two concurrent submissions can never both observe "all rolled"
		// before either has written the order.
		stats, err := w.turnOrderStats(ctx, enc)
		if err != nil {
			w.reject(ctx, cmd, err, "Error resolving turn order")
			return
		}
		enc.ResolveTurnOrder(stats, w.rng)
		w.log.Info("Turn order established", "order", enc.TurnOrder)
	}

	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) turnOrderStats(ctx context.Context, enc *domain.Encounter) (map[string]domain.CharacterCard, error) {
	ids := lo.Map(enc.Participants, func(p domain.EncounterParticipant, _ int) string {
		return p.CharacterID
	})
	cards, err := w.characters.FindSummaries(ctx, ids)
	if err != nil {
		return nil, err
	}
	return lo.SliceToMap(cards, func(card domain.CharacterCard) (string, domain.CharacterCard) {
		return card.ID, card
	}), nil
}

func (w *RoomWorker) handleNextRound(ctx context.Context, cmd domain.RequestNextRound) {
	enc := w.activeEncounter("")
	if enc == nil || !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can advance the turn.")
		return
	}
	enc.AdvanceTurn()
	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) handleNextScene(ctx context.Context, cmd domain.RequestNextScene) {
	enc := w.activeEncounter("")
	if enc == nil || !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can start a new scene.")
		return
	}
	enc.NextScene()
	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) handleEndTurn(ctx context.Context, cmd domain.EndTurn) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}
	if enc.ActiveCharacterID() != cmd.CharacterID {
		w.reject(ctx, cmd, apperrors.ErrStateConflict, "Not your turn.")
		return
	}
	enc.AdvanceTurn()
	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) handleUseAction(ctx context.Context, cmd domain.UseAction) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}

	advance, err := enc.UseAction(cmd.CharacterID, cmd.Action, cmd.IsReaction)
	if err != nil {
		w.reject(ctx, cmd, err, "Participant not found in event")
		return
	}
	if advance {
		enc.AdvanceTurn()
	}
	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) handleDeclareAttack(ctx context.Context, cmd domain.DeclareAttack) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}

	attacker, err := enc.DeclareAttack(cmd.AttackerID, cmd.TargetID)
	if err != nil {
		w.reject(ctx, cmd, err, "Attacker or Target not found in event")
		return
	}

	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))

	avatar, err := w.characters.LoadAvatar(ctx, cmd.AttackerID)
	if err != nil {
		w.log.Debug("Attacker avatar lookup failed", "character", cmd.AttackerID, "error", err)
		avatar = ""
	}

	w.log.Info("Attack declared", "attacker", attacker.Name, "target", cmd.TargetID,
		"hits", cmd.Hits, "location", cmd.HitLocation)
	w.emit(ctx, event.NewIncomingAttack(w.room.Code, cmd, attacker.Name, avatar))
}

func (w *RoomWorker) handleWaiveReaction(ctx context.Context, cmd domain.WaiveReaction) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}

	name, waived, err := enc.WaiveReaction(cmd.CharacterID)
	if err != nil {
		w.reject(ctx, cmd, err, "Participant not found in event")
		return
	}
	if !waived {
		return
	}

	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
	w.emit(ctx, event.NewReactionWaived(w.room.Code, name))
}

func (w *RoomWorker) handleSetReactionTargets(ctx context.Context, cmd domain.SetReactionTargets) {
	enc := w.activeEncounter(cmd.EncounterID)
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}
	if !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can select reaction targets.")
		return
	}

	enc.SetReactionTargets(cmd.CharacterIDs)
	w.persistEncounter(ctx)
	w.emit(ctx, event.NewEncounterUpdated(w.room.Code, enc.Snapshot()))
}

func (w *RoomWorker) handleEndEncounter(ctx context.Context, cmd domain.EndEncounter) {
	enc := w.activeEncounter("")
	if enc == nil {
		w.reject(ctx, cmd, apperrors.ErrNotFound, "Event not found")
		return
	}
	if !w.room.IsFacilitator(cmd.Conn) {
		w.reject(ctx, cmd, apperrors.ErrPermissionDenied, "Only the Room Master can end an event.")
		return
	}

	if err := enc.End(); err != nil {
		w.reject(ctx, cmd, err, "Event already resolved")
		return
	}

	w.persistEncounter(ctx)
	encounterID := enc.ID
	w.encounter = nil
	w.log.Info("Encounter ended", "encounter", encounterID)
	w.emit(ctx, event.NewEncounterEnded(w.room.Code, encounterID))
}

// --- Shared plumbing ---

func (w *RoomWorker) broadcastRoster(ctx context.Context) {
	w.emit(ctx, event.NewRosterUpdated(w.room.Code, w.room.Roster()))
}

func (w *RoomWorker) broadcastSelections(ctx context.Context, categories ...domain.CardCategory) {
	for _, category := range categories {
		w.emit(ctx, event.NewSelectionUpdated(w.room.Code, category, w.selections.Snapshot(category)))
	}
}

// persistEncounter mirrors the in-memory encounter to durable storage.
// The write is best-effort: a failure is logged, never surfaced to the
// room, and the in-memory state stays authoritative.
func (w *RoomWorker) persistEncounter(ctx context.Context) {
	if w.encounter == nil {
		return
	}
	if err := w.encounters.Save(ctx, w.encounter.Snapshot()); err != nil {
		w.log.Error("Encounter snapshot write failed", "encounter", w.encounter.ID, "error", err)
	}
}

func (w *RoomWorker) emit(ctx context.Context, evt event.DomainEvent) {
	select {
	case w.events <- evt:
	case <-ctx.Done():
	}
}

// reject reports a failed command to its originating connection only.
func (w *RoomWorker) reject(ctx context.Context, cmd domain.Command, err error, message string) {
	w.log.Debug("Command rejected", "command", fmt.Sprintf("%T", cmd), "error", err)
	w.emit(ctx, event.NewErrorNotice(w.room.Code, cmd.Connection(), message))
}
