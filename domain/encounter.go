package domain

import (
	"math/rand"
	"sort"
	"time"

	"gameroom-lab/errors"
)

type EncounterKind string

const (
	KindEncounter EncounterKind = "Encounter" // story scene, no initiative
	KindConflict  EncounterKind = "Conflict"  // combat, initiative required
)

type EncounterStatus string

const (
	StatusPending  EncounterStatus = "Pending"
	StatusActive   EncounterStatus = "Active"
	StatusResolved EncounterStatus = "Resolved"
)

type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "Active"
	ParticipantDefeated ParticipantStatus = "Defeated"
)

type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

type ActionType string

const (
	ActionMain    ActionType = "main"
	ActionFast    ActionType = "fast"
	ActionSpecial ActionType = "special"
)

const (
	defaultMainActions    = 1
	defaultFastActions    = 1
	defaultSpecialActions = 0
)

// EncounterParticipant is one combatant in an encounter, carrying its
// display summary plus the per-round action economy.
type EncounterParticipant struct {
	CharacterID    string            `json:"characterId"`
	Name           string            `json:"characterName"`
	Avatar         string            `json:"characterAvatar"`
	Type           CharacterType     `json:"characterType"`
	OwnerID        string            `json:"ownerId"`
	Side           Side              `json:"side"`
	Initiative     *int              `json:"initiative,omitempty"`
	Status         ParticipantStatus `json:"status"`
	MainActions    int               `json:"mainActions"`
	FastActions    int               `json:"fastActions"`
	SpecialActions int               `json:"specialActions"`
	CanReact       bool              `json:"canReact"`
}

// Encounter is the turn-based state machine for one combat or structured
// scene. It is owned by a single room worker; no internal locking.
type Encounter struct {
	ID               string                 `json:"_id"`
	Name             string                 `json:"name"`
	Kind             EncounterKind          `json:"type"`
	RoomCode         string                 `json:"roomCode"`
	CreatedBy        string                 `json:"createdBy"`
	Status           EncounterStatus        `json:"status"`
	Participants     []EncounterParticipant `json:"participants"`
	TurnOrder        []string               `json:"turnOrder"`
	CurrentTurnIndex int                    `json:"currentTurnIndex"`
	Round            int                    `json:"round"`
	Scene            int                    `json:"turn"`
	CreatedAt        time.Time              `json:"createdAt"`
	UpdatedAt        time.Time              `json:"updatedAt"`
}

// NewEncounter builds a Pending encounter from already-validated character
// summaries. Pools start at the per-round defaults, reactions closed.
func NewEncounter(id, name string, kind EncounterKind, roomCode, createdBy string, members []EncounterParticipant) *Encounter {
	now := time.Now().UTC()
	for i := range members {
		members[i].Status = ParticipantActive
		members[i].MainActions = defaultMainActions
		members[i].FastActions = defaultFastActions
		members[i].SpecialActions = defaultSpecialActions
		members[i].CanReact = false
		members[i].Initiative = nil
	}
	return &Encounter{
		ID:           id,
		Name:         name,
		Kind:         kind,
		RoomCode:     roomCode,
		CreatedBy:    createdBy,
		Status:       StatusPending,
		Participants: members,
		Round:        1,
		Scene:        1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Participant returns the member with the given character id, nil if absent.
func (e *Encounter) Participant(characterID string) *EncounterParticipant {
	for i := range e.Participants {
		if e.Participants[i].CharacterID == characterID {
			return &e.Participants[i]
		}
	}
	return nil
}

// ActiveCharacterID is the character owning the current turn slot, empty
// until the turn order is resolved.
func (e *Encounter) ActiveCharacterID() string {
	if e.CurrentTurnIndex < 0 || e.CurrentTurnIndex >= len(e.TurnOrder) {
		return ""
	}
	return e.TurnOrder[e.CurrentTurnIndex]
}

// SubmitInitiative records a roll for one participant.
func (e *Encounter) SubmitInitiative(characterID string, value int) error {
	if e.Status == StatusResolved {
		return errors.ErrStateConflict
	}
	p := e.Participant(characterID)
	if p == nil {
		return errors.ErrNotFound
	}
	v := value
	p.Initiative = &v
	return nil
}

// AllRolled reports whether every participant has a recorded initiative.
func (e *Encounter) AllRolled() bool {
	for i := range e.Participants {
		if e.Participants[i].Initiative == nil {
			return false
		}
	}
	return len(e.Participants) > 0
}

// ResolveTurnOrder sorts participants by initiative (lower acts first) and
// establishes the turn order, transitioning Pending→Active. Ties break on
// Move skill descending, then Agility descending, then Hero before NPC
// before Monster, then a coin flip from rng. Stats come from the character
// store, keyed by character id; missing stats leave the pair unordered.
func (e *Encounter) ResolveTurnOrder(stats map[string]CharacterCard, rng *rand.Rand) {
	const unrolled = 99

	sort.SliceStable(e.Participants, func(i, j int) bool {
		a, b := e.Participants[i], e.Participants[j]

		ai, bi := unrolled, unrolled
		if a.Initiative != nil {
			ai = *a.Initiative
		}
		if b.Initiative != nil {
			bi = *b.Initiative
		}
		if ai != bi {
			return ai < bi
		}

		sa, aok := stats[a.CharacterID]
		sb, bok := stats[b.CharacterID]
		if !aok || !bok {
			return false
		}

		if sa.MoveValue() != sb.MoveValue() {
			return sa.MoveValue() > sb.MoveValue()
		}
		if sa.AgilityValue() != sb.AgilityValue() {
			return sa.AgilityValue() > sb.AgilityValue()
		}
		if typePriority(sa.Type) != typePriority(sb.Type) {
			return typePriority(sa.Type) < typePriority(sb.Type)
		}
		return rng.Intn(2) == 0
	})

	e.TurnOrder = make([]string, 0, len(e.Participants))
	for _, p := range e.Participants {
		e.TurnOrder = append(e.TurnOrder, p.CharacterID)
	}
	e.CurrentTurnIndex = 0
	e.Status = StatusActive
	e.touch()
}

func (e *Encounter) resetActionPools() {
	// Special actions carry over between rounds; only main and fast refill.
	for i := range e.Participants {
		e.Participants[i].MainActions = defaultMainActions
		e.Participants[i].FastActions = defaultFastActions
	}
}

// AdvanceTurn moves the spotlight to the next turn slot, wrapping into a
// new round (with pool refill) at the end of the order. Participants with
// no main and no fast actions left are skipped; a skip that would wrap
// past the last slot is treated as a round boundary instead. All pending
// reaction windows close. Reports whether a new round started.
func (e *Encounter) AdvanceTurn() bool {
	newRound := false

	next := e.CurrentTurnIndex + 1
	if next >= len(e.TurnOrder) {
		e.Round++
		next = 0
		newRound = true
		e.resetActionPools()
	}
	e.CurrentTurnIndex = next

	skipped := 0
	for skipped < len(e.TurnOrder) {
		current := e.Participant(e.TurnOrder[e.CurrentTurnIndex])
		if current == nil || current.MainActions != 0 || current.FastActions != 0 {
			break
		}

		if e.CurrentTurnIndex == len(e.TurnOrder)-1 {
			e.Round++
			newRound = true
			e.resetActionPools()
			e.CurrentTurnIndex = 0
			break
		}

		e.CurrentTurnIndex = (e.CurrentTurnIndex + 1) % len(e.TurnOrder)
		skipped++
	}

	for i := range e.Participants {
		e.Participants[i].CanReact = false
	}
	e.touch()
	return newRound
}

// UseAction decrements the matching pool, flooring at zero. It reports
// whether the turn should auto-advance: the actor owns the active slot,
// the spend was not a reaction, both main and fast pools are now empty,
// and no other participant holds an open reaction window. Special actions
// do not keep a turn alive.
func (e *Encounter) UseAction(characterID string, action ActionType, isReaction bool) (bool, error) {
	if e.Status == StatusResolved {
		return false, errors.ErrStateConflict
	}
	p := e.Participant(characterID)
	if p == nil {
		return false, errors.ErrNotFound
	}

	switch action {
	case ActionMain:
		if p.MainActions > 0 {
			p.MainActions--
		}
	case ActionFast:
		if p.FastActions > 0 {
			p.FastActions--
		}
	case ActionSpecial:
		if p.SpecialActions > 0 {
			p.SpecialActions--
		}
	default:
		return false, errors.ErrInvalidFormat
	}
	e.touch()

	isCurrentTurn := e.ActiveCharacterID() == characterID
	outOfActions := p.MainActions == 0 && p.FastActions == 0
	reactionPending := false
	for i := range e.Participants {
		if e.Participants[i].CanReact && e.Participants[i].CharacterID != characterID {
			reactionPending = true
			break
		}
	}

	return isCurrentTurn && !isReaction && outOfActions && !reactionPending, nil
}

// DeclareAttack opens the target's reaction window. Damage is resolved at
// the table, not here. Returns the attacker for alert enrichment.
func (e *Encounter) DeclareAttack(attackerID, targetID string) (*EncounterParticipant, error) {
	if e.Status == StatusResolved {
		return nil, errors.ErrStateConflict
	}
	attacker := e.Participant(attackerID)
	target := e.Participant(targetID)
	if attacker == nil || target == nil {
		return nil, errors.ErrNotFound
	}
	target.CanReact = true
	e.touch()
	return attacker, nil
}

// WaiveReaction closes the participant's reaction window if open and
// returns the character name for the room notice.
func (e *Encounter) WaiveReaction(characterID string) (string, bool, error) {
	p := e.Participant(characterID)
	if p == nil {
		return "", false, errors.ErrNotFound
	}
	if !p.CanReact {
		return p.Name, false, nil
	}
	p.CanReact = false
	e.touch()
	return p.Name, true, nil
}

// SetReactionTargets is the facilitator override: exactly the listed
// character ids may react, everyone else's window closes.
func (e *Encounter) SetReactionTargets(characterIDs []string) {
	allowed := make(map[string]struct{}, len(characterIDs))
	for _, id := range characterIDs {
		allowed[id] = struct{}{}
	}
	for i := range e.Participants {
		_, ok := allowed[e.Participants[i].CharacterID]
		e.Participants[i].CanReact = ok
	}
	e.touch()
}

// NextScene starts a fresh scene: scene counter up, round back to 1, turn
// index to the top, and every pool and reaction flag to its default.
func (e *Encounter) NextScene() {
	e.Scene++
	e.Round = 1
	e.CurrentTurnIndex = 0
	for i := range e.Participants {
		e.Participants[i].MainActions = defaultMainActions
		e.Participants[i].FastActions = defaultFastActions
		e.Participants[i].SpecialActions = defaultSpecialActions
		e.Participants[i].CanReact = false
	}
	e.touch()
}

// End marks the encounter Resolved. Resolved is terminal: a second End is
// a state conflict, not a reapplication.
func (e *Encounter) End() error {
	if e.Status == StatusResolved {
		return errors.ErrStateConflict
	}
	e.Status = StatusResolved
	e.touch()
	return nil
}

// Snapshot returns a deep copy safe to hand to other goroutines
// (broadcast sinks, persistence).
func (e *Encounter) Snapshot() Encounter {
	out := *e
	out.Participants = make([]EncounterParticipant, len(e.Participants))
	copy(out.Participants, e.Participants)
	for i := range out.Participants {
		if e.Participants[i].Initiative != nil {
			v := *e.Participants[i].Initiative
			out.Participants[i].Initiative = &v
		}
	}
	out.TurnOrder = make([]string, len(e.TurnOrder))
	copy(out.TurnOrder, e.TurnOrder)
	return out
}

func (e *Encounter) touch() {
	e.UpdatedAt = time.Now().UTC()
}
