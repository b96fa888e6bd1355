package ws

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"gameroom-lab/domain"
)

// Envelope is the wire frame in both directions: a type tag plus a
// type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("roomcode", func(fl validator.FieldLevel) bool {
		return domain.ValidRoomCode(fl.Field().String())
	})
	return v
}

// Inbound payloads. Every room-scoped request repeats the room code; the
// handler cross-checks it against the connection's current room where one
// is established.

type joinRoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required,roomcode"`
	UserID   string `json:"userId" validate:"required"`
}

type leaveRoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
}

type deleteRoomPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type transferMasterPayload struct {
	RoomCode    string `json:"roomCode" validate:"required"`
	NewMasterID string `json:"newMasterId" validate:"required"`
}

type chatMessagePayload struct {
	RoomCode  string `json:"roomCode" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	MessageID string `json:"id"`
	Message   string `json:"message" validate:"required,max=4096"`
}

type diceRollPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	UserName string `json:"userName"`
	Roll     int    `json:"roll"`
	Hidden   bool   `json:"hidden"`
}

type detailedDiceRollPayload struct {
	RoomCode string                  `json:"roomCode" validate:"required"`
	Roll     domain.DetailedDiceRoll `json:"roll" validate:"required"`
}

type selectionPayload struct {
	RoomCode     string   `json:"roomCode" validate:"required"`
	CharacterIDs []string `json:"characterIds" validate:"required"`
}

type clearSelectionPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type startEventPayload struct {
	RoomCode     string `json:"roomCode" validate:"required"`
	Name         string `json:"name" validate:"required,max=100"`
	Kind         string `json:"type" validate:"required,oneof=Encounter Conflict"`
	Participants []struct {
		CharacterID string `json:"characterId" validate:"required"`
		Side        string `json:"side" validate:"required,oneof=A B"`
	} `json:"participants" validate:"required,min=1,dive"`
}

type initiativePayload struct {
	RoomCode    string `json:"roomCode" validate:"required"`
	EncounterID string `json:"eventId" validate:"required"`
	CharacterID string `json:"characterId" validate:"required"`
	Initiative  int    `json:"initiative" validate:"min=1,max=10"`
}

type roomOnlyPayload struct {
	RoomCode string `json:"roomCode" validate:"required"`
}

type endTurnPayload struct {
	RoomCode    string `json:"roomCode" validate:"required"`
	EncounterID string `json:"eventId" validate:"required"`
	CharacterID string `json:"characterId" validate:"required"`
}

type useActionPayload struct {
	RoomCode    string `json:"roomCode" validate:"required"`
	EncounterID string `json:"eventId" validate:"required"`
	CharacterID string `json:"characterId" validate:"required"`
	ActionType  string `json:"actionType" validate:"required,oneof=main fast special"`
	IsReaction  bool   `json:"isReaction"`
}

type declareAttackPayload struct {
	RoomCode    string        `json:"roomCode" validate:"required"`
	EncounterID string        `json:"eventId" validate:"required"`
	AttackerID  string        `json:"attackerId" validate:"required"`
	TargetID    string        `json:"targetId" validate:"required"`
	Weapon      domain.Weapon `json:"weapon"`
	Hits        int           `json:"hits"`
	HitLocation string        `json:"hitLocation"`
}

type waiveReactionPayload struct {
	RoomCode    string `json:"roomCode" validate:"required"`
	EncounterID string `json:"eventId" validate:"required"`
	CharacterID string `json:"characterId" validate:"required"`
}

type reactionTargetsPayload struct {
	RoomCode     string   `json:"roomCode" validate:"required"`
	EncounterID  string   `json:"eventId" validate:"required"`
	CharacterIDs []string `json:"characterIds"`
}

type characterTransferPayload struct {
	RoomCode string                   `json:"roomCode" validate:"required"`
	Transfer domain.CharacterTransfer `json:"transfer"`
}
