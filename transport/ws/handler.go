// Package ws exposes the coordinator over a websocket endpoint. Clients
// authenticate with a JWT, then exchange JSON envelopes; every server push
// flows through the event pipeline, never directly from the read loop.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"gameroom-lab/auth"
	"gameroom-lab/contract"
	"gameroom-lab/domain"
	"gameroom-lab/domain/event"
	apperrors "gameroom-lab/errors"
	"gameroom-lab/runtime"
)

// Handler accepts websocket connections and turns their frames into
// commands for the coordinator.
type Handler struct {
	coordinator *runtime.Coordinator
	registry    contract.IRegistry
	tokens      *auth.TokenService
	bufferSize  int
	log         *slog.Logger
}

func NewHandler(coordinator *runtime.Coordinator, registry contract.IRegistry,
	tokens *auth.TokenService, bufferSize int, log *slog.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		registry:    registry,
		tokens:      tokens,
		bufferSize:  bufferSize,
		log:         log,
	}
}

// Register mounts the websocket endpoint on the app.
func (h *Handler) Register(app *fiber.App) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(h.handle))
}

// session is the per-connection state owned by the read loop.
type session struct {
	connID      string
	identity    domain.Identity
	currentRoom string
	sink        *ConnSink
}

func (h *Handler) handle(c *websocket.Conn) {
	identity, err := h.tokens.Validate(c.Query("token"))
	if err != nil {
		h.log.Debug("Rejecting connection with invalid token", "error", err)
		_ = c.WriteJSON(outEnvelope{Type: "error", Payload: fiber.Map{"message": "Invalid or expired token"}})
		_ = c.Close()
		return
	}

	s := &session{
		connID:   uuid.NewString(),
		identity: identity,
		sink:     NewConnSink(c, h.bufferSize, h.log),
	}
	h.registry.Connect(s.connID, s.sink)
	h.log.Info("Connection established", "connection", s.connID, "user", identity.UserID)

	defer func() {
		if s.currentRoom != "" {
			cmd := domain.Disconnect{Base: domain.Base{Conn: s.connID, RoomCode: s.currentRoom}}
			// The tracked room may already be gone: another member deleted
			// it, or it emptied out. A stale entry here is not an error.
			if err := h.coordinator.Dispatch(context.Background(), cmd); err != nil && !errors.Is(err, apperrors.ErrNotFound) {
				h.log.Warn("Disconnect dispatch failed", "connection", s.connID, "error", err)
			}
		}
		h.registry.Disconnect(s.connID)
		s.sink.Close()
		h.log.Info("Connection closed", "connection", s.connID, "user", identity.UserID)
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Client closed connection", "connection", s.connID)
			} else {
				h.log.Debug("Read failed", "connection", s.connID, "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			h.notifyError(s, "", "Invalid message format")
			continue
		}
		h.dispatch(s, env)
	}
}

// dispatch decodes one envelope into a command and hands it to the
// coordinator. Failures at this layer (unknown type, malformed payload,
// unknown room) are answered directly on the connection; everything past
// the coordinator answers through the event pipeline.
func (h *Handler) dispatch(s *session, env Envelope) {
	cmd, err := h.toCommand(s, env)
	if err != nil {
		h.notifyError(s, "", err.Error())
		return
	}
	if cmd == nil {
		return
	}

	if err := h.coordinator.Dispatch(context.Background(), cmd); err != nil {
		switch {
		case errors.Is(err, apperrors.ErrInvalidFormat):
			h.notifyError(s, cmd.Room(), "Invalid room code format")
		case errors.Is(err, apperrors.ErrNotFound):
			h.notifyError(s, cmd.Room(), "Room not found")
		default:
			h.log.Error("Dispatch failed", "connection", s.connID, "type", env.Type, "error", err)
			h.notifyError(s, cmd.Room(), "Internal error")
		}
		return
	}

	// Track room membership for the implicit leave on connection loss.
	switch env.Type {
	case "join_room":
		s.currentRoom = cmd.Room()
	case "leave_room", "delete_room":
		if s.currentRoom == cmd.Room() {
			s.currentRoom = ""
		}
	}
}

func (h *Handler) toCommand(s *session, env Envelope) (domain.Command, error) {
	base := func(roomCode string) domain.Base {
		return domain.Base{Conn: s.connID, RoomCode: roomCode}
	}

	switch env.Type {
	case "join_room":
		var p joinRoomPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.JoinRoom{Base: base(p.RoomCode), Actor: s.identity, UserID: p.UserID}, nil

	case "leave_room":
		var p leaveRoomPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.LeaveRoom{Base: base(p.RoomCode), Actor: s.identity, UserID: p.UserID}, nil

	case "delete_room":
		var p deleteRoomPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.DeleteRoom{Base: base(p.RoomCode)}, nil

	case "transfer_room_master":
		var p transferMasterPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.TransferFacilitator{Base: base(p.RoomCode), NewFacilitatorUserID: p.NewMasterID}, nil

	case "chat_message":
		var p chatMessagePayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.PostChat{
			Base: base(p.RoomCode), Actor: s.identity,
			UserID: p.UserID, MessageID: p.MessageID, Content: p.Message,
		}, nil

	case "dice_roll":
		var p diceRollPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.RollDice{
			Base: base(p.RoomCode), Actor: s.identity,
			UserID: p.UserID, UserName: p.UserName, Roll: p.Roll, Hidden: p.Hidden,
		}, nil

	case "detailed_dice_roll":
		var p detailedDiceRollPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.PostDetailedRoll{Base: base(p.RoomCode), Payload: p.Roll}, nil

	case "update_active_cards", "update_active_npcs", "update_active_monsters":
		var p selectionPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		category := domain.CategoryHero
		switch env.Type {
		case "update_active_npcs":
			category = domain.CategoryNPC
		case "update_active_monsters":
			category = domain.CategoryMonster
		}
		return domain.SetSelection{
			Base: base(p.RoomCode), Actor: s.identity,
			Category: category, CharacterIDs: p.CharacterIDs,
		}, nil

	case "clear_active_card":
		var p clearSelectionPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.ClearSelection{Base: base(p.RoomCode), Actor: s.identity}, nil

	case "start_event":
		var p startEventPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		seeds := make([]domain.EncounterSeed, 0, len(p.Participants))
		for _, member := range p.Participants {
			seeds = append(seeds, domain.EncounterSeed{
				CharacterID: member.CharacterID,
				Side:        domain.Side(member.Side),
			})
		}
		return domain.StartEncounter{
			Base: base(p.RoomCode),
			Name: p.Name, Kind: domain.EncounterKind(p.Kind), Participants: seeds,
		}, nil

	case "initiative_roll":
		var p initiativePayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.SubmitInitiative{
			Base:        base(p.RoomCode),
			EncounterID: p.EncounterID, CharacterID: p.CharacterID, Initiative: p.Initiative,
		}, nil

	case "request_next_round":
		var p roomOnlyPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.RequestNextRound{Base: base(p.RoomCode)}, nil

	case "request_next_turn":
		var p roomOnlyPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.RequestNextScene{Base: base(p.RoomCode)}, nil

	case "end_turn":
		var p endTurnPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.EndTurn{Base: base(p.RoomCode), EncounterID: p.EncounterID, CharacterID: p.CharacterID}, nil

	case "use_action":
		var p useActionPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.UseAction{
			Base:        base(p.RoomCode),
			EncounterID: p.EncounterID, CharacterID: p.CharacterID,
			Action: domain.ActionType(p.ActionType), IsReaction: p.IsReaction,
		}, nil

	case "declare_attack":
		var p declareAttackPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.DeclareAttack{
			Base:        base(p.RoomCode),
			EncounterID: p.EncounterID, AttackerID: p.AttackerID, TargetID: p.TargetID,
			Weapon: p.Weapon, Hits: p.Hits, HitLocation: p.HitLocation,
		}, nil

	case "waive_reaction":
		var p waiveReactionPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.WaiveReaction{Base: base(p.RoomCode), EncounterID: p.EncounterID, CharacterID: p.CharacterID}, nil

	case "set_reaction_targets":
		var p reactionTargetsPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.SetReactionTargets{Base: base(p.RoomCode), EncounterID: p.EncounterID, CharacterIDs: p.CharacterIDs}, nil

	case "end_event":
		var p roomOnlyPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.EndEncounter{Base: base(p.RoomCode)}, nil

	case "transfer_character":
		var p characterTransferPayload
		if err := decode(env.Payload, &p); err != nil {
			return nil, err
		}
		return domain.NotifyCharacterTransfer{Base: base(p.RoomCode), Transfer: p.Transfer}, nil

	default:
		return nil, errors.New("Unknown message type: " + env.Type)
	}
}

// decode unmarshals and validates one payload.
func decode[T any](raw json.RawMessage, out *T) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.New("Invalid message format")
	}
	if err := validate.Struct(out); err != nil {
		return errors.New("Invalid payload: " + err.Error())
	}
	return nil
}

// notifyError answers directly on the connection, bypassing the pipeline.
// Used only for failures that never reached a room worker.
func (h *Handler) notifyError(s *session, roomCode, message string) {
	_ = s.sink.Consume(context.Background(), event.NewErrorNotice(roomCode, s.connID, message))
}
