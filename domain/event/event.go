// Package event defines the notifications the coordinator fans out to
// connected clients after each state transition.
package event

import (
	"time"

	"github.com/google/uuid"

	"gameroom-lab/domain"
)

// Scope decides which connections of a room receive an event.
type Scope int

const (
	// ScopeRoom delivers to every connection joined to the room.
	ScopeRoom Scope = iota
	// ScopeConnections delivers only to the listed connection ids.
	ScopeConnections
)

// Audience pairs a scope with its explicit recipients (connection scope
// only).
type Audience struct {
	Scope       Scope
	Connections []string
}

func ToRoom() Audience { return Audience{Scope: ScopeRoom} }

func ToConnections(connIDs ...string) Audience {
	return Audience{Scope: ScopeConnections, Connections: connIDs}
}

// DomainEvent is one outbound notification. Type is the wire event name
// the client subscribes to.
type DomainEvent interface {
	RoomCode() string
	Type() string
	Audience() Audience
}

// roomScoped is the default carrier for room-wide events. The routing
// fields never reach the wire.
type roomScoped struct {
	Room string `json:"-"`
}

func (r roomScoped) RoomCode() string   { return r.Room }
func (r roomScoped) Audience() Audience { return ToRoom() }

// targeted is the carrier for events addressed to specific connections.
type targeted struct {
	Room  string   `json:"-"`
	Conns []string `json:"-"`
}

func (t targeted) RoomCode() string   { return t.Room }
func (t targeted) Audience() Audience { return ToConnections(t.Conns...) }

// --- Room lifecycle ---

type RoomCreated struct {
	targeted
	Code string `json:"roomCode"`
}

func NewRoomCreated(room, conn string) RoomCreated {
	return RoomCreated{targeted: targeted{Room: room, Conns: []string{conn}}, Code: room}
}

func (RoomCreated) Type() string { return "room_created" }

type RoomJoined struct {
	targeted
	Code string `json:"roomCode"`
}

func NewRoomJoined(room, conn string) RoomJoined {
	return RoomJoined{targeted: targeted{Room: room, Conns: []string{conn}}, Code: room}
}

func (RoomJoined) Type() string { return "room_joined" }

// RoomDeleted announces the room's removal. Recipients are captured at
// emit time: the room's audience is purged right after a delete, so a
// late room-scope resolution would come up empty. With no explicit
// recipients it falls back to room scope.
type RoomDeleted struct {
	Room  string   `json:"-"`
	Conns []string `json:"-"`
}

func NewRoomDeleted(room string, conns ...string) RoomDeleted {
	return RoomDeleted{Room: room, Conns: conns}
}

func (r RoomDeleted) RoomCode() string { return r.Room }

func (r RoomDeleted) Audience() Audience {
	if len(r.Conns) == 0 {
		return ToRoom()
	}
	return ToConnections(r.Conns...)
}

func (RoomDeleted) Type() string { return "room_deleted" }

type RosterUpdated struct {
	roomScoped
	Users []domain.RosterEntry `json:"users"`
}

func NewRosterUpdated(room string, users []domain.RosterEntry) RosterUpdated {
	return RosterUpdated{roomScoped: roomScoped{Room: room}, Users: users}
}

func (RosterUpdated) Type() string { return "update_room_users" }

type NewFacilitator struct {
	roomScoped
	UserID string `json:"userId"`
}

func NewNewFacilitator(room, userID string) NewFacilitator {
	return NewFacilitator{roomScoped: roomScoped{Room: room}, UserID: userID}
}

func (NewFacilitator) Type() string { return "new_room_master" }

type UserLeft struct {
	roomScoped
	UserID string `json:"userId"`
}

func NewUserLeft(room, userID string) UserLeft {
	return UserLeft{roomScoped: roomScoped{Room: room}, UserID: userID}
}

func (UserLeft) Type() string { return "user_left" }

// --- Chat & dice ---

// ChatPosted is the raw chat message as accepted from the client. It is
// consumed by the moderation worker, never delivered to clients directly.
type ChatPosted struct {
	roomScoped
	ID      uuid.UUID
	UserID  string
	Content string
	At      time.Time
}

func NewChatPosted(room string, id uuid.UUID, userID, content string, at time.Time) ChatPosted {
	return ChatPosted{roomScoped: roomScoped{Room: room}, ID: id, UserID: userID, Content: content, At: at}
}

func (ChatPosted) Type() string { return "chat_posted" }

// ChatMessage is the sanitized chat message delivered to the room.
type ChatMessage struct {
	roomScoped
	ID       uuid.UUID `json:"id"`
	UserID   string    `json:"userId"`
	Content  string    `json:"message"`
	Language string    `json:"language,omitempty"`
	At       time.Time `json:"at"`
}

func NewChatMessage(room string, id uuid.UUID, userID, content, language string, at time.Time) ChatMessage {
	return ChatMessage{
		roomScoped: roomScoped{Room: room},
		ID:         id, UserID: userID, Content: content, Language: language, At: at,
	}
}

func (ChatMessage) Type() string { return "chat_message" }

// DiceRolled is a plain roll result. Hidden rolls are addressed to the
// facilitator and the roller only.
type DiceRolled struct {
	Room     string   `json:"-"`
	To       Audience `json:"-"`
	UserID   string   `json:"userId"`
	UserName string   `json:"userName"`
	Roll     int      `json:"roll"`
	Hidden   bool     `json:"hidden"`
}

func (d DiceRolled) RoomCode() string   { return d.Room }
func (d DiceRolled) Audience() Audience { return d.To }
func (DiceRolled) Type() string         { return "dice_roll" }

type DetailedDiceRolled struct {
	roomScoped
	Payload domain.DetailedDiceRoll
}

func NewDetailedDiceRolled(room string, payload domain.DetailedDiceRoll) DetailedDiceRolled {
	return DetailedDiceRolled{roomScoped: roomScoped{Room: room}, Payload: payload}
}

func (DetailedDiceRolled) Type() string { return "detailed_dice_roll" }

// --- Selection pools ---

// SelectionUpdated carries the full user→cards map of one category.
type SelectionUpdated struct {
	roomScoped
	Category domain.CardCategory
	Pools    map[string][]domain.CharacterCard
}

func NewSelectionUpdated(room string, category domain.CardCategory, pools map[string][]domain.CharacterCard) SelectionUpdated {
	return SelectionUpdated{roomScoped: roomScoped{Room: room}, Category: category, Pools: pools}
}

func (s SelectionUpdated) Type() string {
	switch s.Category {
	case domain.CategoryNPC:
		return "update_active_npcs"
	case domain.CategoryMonster:
		return "update_active_monsters"
	default:
		return "update_active_cards"
	}
}

// --- Encounter lifecycle ---

type EncounterStarted struct {
	roomScoped
	Encounter domain.Encounter
}

func NewEncounterStarted(room string, snapshot domain.Encounter) EncounterStarted {
	return EncounterStarted{roomScoped: roomScoped{Room: room}, Encounter: snapshot}
}

func (EncounterStarted) Type() string { return "event_started" }

type EncounterUpdated struct {
	roomScoped
	Encounter domain.Encounter
}

func NewEncounterUpdated(room string, snapshot domain.Encounter) EncounterUpdated {
	return EncounterUpdated{roomScoped: roomScoped{Room: room}, Encounter: snapshot}
}

func (EncounterUpdated) Type() string { return "event_updated" }

type EncounterEnded struct {
	roomScoped
	EncounterID string `json:"eventId"`
}

func NewEncounterEnded(room, encounterID string) EncounterEnded {
	return EncounterEnded{roomScoped: roomScoped{Room: room}, EncounterID: encounterID}
}

func (EncounterEnded) Type() string { return "event_ended" }

type InitiativeRequested struct {
	roomScoped
	EncounterID string `json:"eventId"`
}

func NewInitiativeRequested(room, encounterID string) InitiativeRequested {
	return InitiativeRequested{roomScoped: roomScoped{Room: room}, EncounterID: encounterID}
}

func (InitiativeRequested) Type() string { return "request_initiative_roll" }

// IncomingAttack alerts the room that a reaction window opened on the
// target. The attacker's display name and avatar are resolved from the
// character store before fanout.
type IncomingAttack struct {
	roomScoped
	EncounterID    string        `json:"eventId"`
	AttackerID     string        `json:"attackerId"`
	TargetID       string        `json:"targetId"`
	Weapon         domain.Weapon `json:"weapon"`
	Hits           int           `json:"hits"`
	HitLocation    string        `json:"hitLocation"`
	AttackerName   string        `json:"attackerName"`
	AttackerAvatar string        `json:"attackerAvatar"`
}

func (IncomingAttack) Type() string { return "incoming_attack_alert" }

// NewIncomingAttack builds the room-wide alert for a declared attack.
func NewIncomingAttack(room string, cmd domain.DeclareAttack, attackerName, attackerAvatar string) IncomingAttack {
	return IncomingAttack{
		roomScoped:     roomScoped{Room: room},
		EncounterID:    cmd.EncounterID,
		AttackerID:     cmd.AttackerID,
		TargetID:       cmd.TargetID,
		Weapon:         cmd.Weapon,
		Hits:           cmd.Hits,
		HitLocation:    cmd.HitLocation,
		AttackerName:   attackerName,
		AttackerAvatar: attackerAvatar,
	}
}

type ReactionWaived struct {
	roomScoped
	CharacterName string `json:"characterName"`
}

func NewReactionWaived(room, characterName string) ReactionWaived {
	return ReactionWaived{roomScoped: roomScoped{Room: room}, CharacterName: characterName}
}

func (ReactionWaived) Type() string { return "reaction_waived_notification" }

type CharacterTransferred struct {
	roomScoped
	Transfer domain.CharacterTransfer
}

func NewCharacterTransferred(room string, transfer domain.CharacterTransfer) CharacterTransferred {
	return CharacterTransferred{roomScoped: roomScoped{Room: room}, Transfer: transfer}
}

func (CharacterTransferred) Type() string { return "notify_character_transferred" }

// --- Search & errors ---

// SearchHit is one archived chat message matched by a /find query.
type SearchHit struct {
	UserID  string    `json:"userId"`
	Content string    `json:"message"`
	At      time.Time `json:"at"`
}

type SearchResults struct {
	targeted
	Query string      `json:"query"`
	Hits  []SearchHit `json:"hits"`
}

func NewSearchResults(room, conn, query string, hits []SearchHit) SearchResults {
	return SearchResults{targeted: targeted{Room: room, Conns: []string{conn}}, Query: query, Hits: hits}
}

func (SearchResults) Type() string { return "search_results" }

// ErrorNotice is delivered only to the connection whose message was
// rejected. The room state is untouched when one is emitted.
type ErrorNotice struct {
	targeted
	Message string `json:"message"`
}

func NewErrorNotice(room, conn, message string) ErrorNotice {
	return ErrorNotice{targeted: targeted{Room: room, Conns: []string{conn}}, Message: message}
}

func (ErrorNotice) Type() string { return "error" }
