package domain

import (
	"time"
)

// Command is one inbound client message, already authenticated and scoped
// to a room. Commands are applied strictly in acceptance order by the
// room's worker.
type Command interface {
	Room() string
	Connection() string
}

// Base carries the fields every command shares: the originating connection
// and the room it targets.
type Base struct {
	Conn     string
	RoomCode string
}

func (b Base) Room() string       { return b.RoomCode }
func (b Base) Connection() string { return b.Conn }

type JoinRoom struct {
	Base
	Actor  Identity
	UserID string
}

type LeaveRoom struct {
	Base
	Actor  Identity
	UserID string
}

// Disconnect is synthesized by the transport on every connection loss; it
// behaves like an implicit leave.
type Disconnect struct {
	Base
}

type DeleteRoom struct {
	Base
}

type TransferFacilitator struct {
	Base
	NewFacilitatorUserID string
}

type PostChat struct {
	Base
	Actor     Identity
	UserID    string
	MessageID string
	Content   string
	At        time.Time
}

type RollDice struct {
	Base
	Actor    Identity
	UserID   string
	UserName string
	Roll     int
	Hidden   bool
}

type PostDetailedRoll struct {
	Base
	Payload DetailedDiceRoll
}

type SetSelection struct {
	Base
	Actor        Identity
	Category     CardCategory
	CharacterIDs []string
}

type ClearSelection struct {
	Base
	Actor Identity
}

// EncounterSeed is one requested combatant in a start-encounter command.
type EncounterSeed struct {
	CharacterID string
	Side        Side
}

type StartEncounter struct {
	Base
	Name         string
	Kind         EncounterKind
	Participants []EncounterSeed
}

type SubmitInitiative struct {
	Base
	EncounterID string
	CharacterID string
	Initiative  int
}

type RequestNextRound struct {
	Base
}

type RequestNextScene struct {
	Base
}

type EndTurn struct {
	Base
	EncounterID string
	CharacterID string
}

type UseAction struct {
	Base
	EncounterID string
	CharacterID string
	Action      ActionType
	IsReaction  bool
}

type DeclareAttack struct {
	Base
	EncounterID string
	AttackerID  string
	TargetID    string
	Weapon      Weapon
	Hits        int
	HitLocation string
}

type WaiveReaction struct {
	Base
	EncounterID string
	CharacterID string
}

type SetReactionTargets struct {
	Base
	EncounterID  string
	CharacterIDs []string
}

type EndEncounter struct {
	Base
}

type NotifyCharacterTransfer struct {
	Base
	Transfer CharacterTransfer
}
