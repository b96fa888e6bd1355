package workers

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"gameroom-lab/contract"
	"gameroom-lab/domain"
	"gameroom-lab/domain/event"
	"gameroom-lab/repositories"
)

const testRoomCode = "Camp-KOD:12345-000001"

// fakeRegistry records audience membership so tests can assert when the
// worker registers and deregisters connections.
type fakeRegistry struct {
	mu    sync.Mutex
	rooms map[string]map[string]struct{}
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rooms: make(map[string]map[string]struct{})}
}

func (f *fakeRegistry) JoinRoom(connID, roomCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[roomCode]; !ok {
		f.rooms[roomCode] = make(map[string]struct{})
	}
	f.rooms[roomCode][connID] = struct{}{}
}

func (f *fakeRegistry) LeaveRoom(connID, roomCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms[roomCode], connID)
}

func (f *fakeRegistry) PurgeRoom(roomCode string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, roomCode)
}

func (f *fakeRegistry) members(roomCode string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for connID := range f.rooms[roomCode] {
		out = append(out, connID)
	}
	return out
}

func (f *fakeRegistry) Connect(string, contract.EventSink) {}
func (f *fakeRegistry) Disconnect(string)                  {}

func (f *fakeRegistry) SinksForRoom(string) []contract.EventSink { return nil }

func (f *fakeRegistry) SinksForConnections([]string) []contract.EventSink { return nil }

type roomHarness struct {
	t        *testing.T
	commands chan domain.Command
	events   chan event.DomainEvent
	registry *fakeRegistry
	store    repositories.CharacterStore
	repo     repositories.EncounterRepository
	released chan struct{}
	done     chan error
}

func startRoom(t *testing.T) *roomHarness {
	t.Helper()
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	h := &roomHarness{
		t:        t,
		commands: make(chan domain.Command, 16),
		events:   make(chan event.DomainEvent, 64),
		registry: newFakeRegistry(),
		store:    repositories.NewCharacterStore(db, log),
		repo:     repositories.NewEncounterRepository(db, log),
		released: make(chan struct{}),
		done:     make(chan error, 1),
	}

	worker := NewRoomWorker(testRoomCode, h.commands, h.events, h.registry, h.store, h.repo, nil,
		rand.New(rand.NewSource(1)), log, func() { close(h.released) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { h.done <- worker.Run(ctx) }()
	return h
}

func (h *roomHarness) send(cmd domain.Command) {
	h.t.Helper()
	select {
	case h.commands <- cmd:
	case <-time.After(time.Second):
		h.t.Fatal("command channel blocked")
	}
}

func (h *roomHarness) next() event.DomainEvent {
	h.t.Helper()
	select {
	case evt := <-h.events:
		return evt
	case <-time.After(time.Second):
		h.t.Fatal("no event emitted in time")
		return nil
	}
}

func (h *roomHarness) expect(eventType string) event.DomainEvent {
	h.t.Helper()
	evt := h.next()
	require.Equal(h.t, eventType, evt.Type())
	return evt
}

// drainJoin consumes the fixed burst a successful join produces.
func (h *roomHarness) drainJoin(created bool) {
	h.t.Helper()
	if created {
		h.expect("room_created")
	} else {
		h.expect("room_joined")
	}
	h.expect("update_room_users")
	h.expect("update_active_cards")
	h.expect("update_active_npcs")
	h.expect("update_active_monsters")
}

func (h *roomHarness) join(conn, userID string) {
	h.t.Helper()
	h.send(domain.JoinRoom{
		Base:   domain.Base{Conn: conn, RoomCode: testRoomCode},
		Actor:  roomIdentity(userID),
		UserID: userID,
	})
}

func roomIdentity(userID string) domain.Identity {
	return domain.Identity{
		UserID:    userID,
		FirstName: "First-" + userID,
		LastName:  "Last-" + userID,
		Email:     userID + "@example.com",
	}
}

func heroCard(id, owner string, agility, move int) domain.CharacterCard {
	return statedCard(id, domain.TypeHero, owner, agility, move)
}

func statedCard(id string, kind domain.CharacterType, owner string, agility, move int) domain.CharacterCard {
	return domain.CharacterCard{
		ID:      id,
		Name:    "Name-" + id,
		Avatar:  "https://cards.example/" + id + ".png",
		Type:    kind,
		OwnerID: owner,
		Attribute: domain.Attributes{
			Agility: domain.Attribute{DisplayName: "Agility", Value: agility},
		},
		Skills: map[string]domain.Skill{
			"Move": {DisplayName: "Move", Value: move, LinkedAttribute: "Agility"},
		},
	}
}

func TestRoomWorker_FirstJoinCreatesRoom(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)

	h.join("conn-a", "alice")

	created := h.expect("room_created")
	req.Equal(event.ScopeConnections, created.Audience().Scope)
	req.Equal([]string{"conn-a"}, created.Audience().Connections)

	roster := h.expect("update_room_users").(event.RosterUpdated)
	req.Len(roster.Users, 1)
	req.Equal("alice", roster.Users[0].ID)
	req.Equal(domain.RoleFacilitator, roster.Users[0].Role)

	h.expect("update_active_cards")
	h.expect("update_active_npcs")
	h.expect("update_active_monsters")

	h.join("conn-b", "bob")
	h.expect("room_joined")
	roster = h.expect("update_room_users").(event.RosterUpdated)
	req.Len(roster.Users, 2)
}

func TestRoomWorker_JoinRejectsMismatchedUser(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)

	h.send(domain.JoinRoom{
		Base:   domain.Base{Conn: "conn-x", RoomCode: testRoomCode},
		Actor:  roomIdentity("alice"),
		UserID: "mallory",
	})

	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Authorization error: UserId does not match", notice.Message)
	req.Equal([]string{"conn-x"}, notice.Audience().Connections)

	// The connection was never admitted, so it must not be in the audience,
	// and a room that only ever saw a rejected join has nobody in it.
	req.Empty(h.registry.members(testRoomCode))
	select {
	case <-h.released:
	case <-time.After(time.Second):
		req.Fail("empty room was not released after its only join was rejected")
	}
}

func TestRoomWorker_HiddenRollReachesFacilitatorAndRoller(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.RollDice{
		Base:   domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Actor:  roomIdentity("bob"),
		UserID: "bob", UserName: "Bob", Roll: 6, Hidden: true,
	})

	rolled := h.expect("dice_roll").(event.DiceRolled)
	req.True(rolled.Hidden)
	req.Equal(event.ScopeConnections, rolled.Audience().Scope)
	req.ElementsMatch([]string{"conn-a", "conn-b"}, rolled.Audience().Connections)

	// Open rolls go to the whole room.
	h.send(domain.RollDice{
		Base:   domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Actor:  roomIdentity("bob"),
		UserID: "bob", UserName: "Bob", Roll: 3,
	})
	rolled = h.expect("dice_roll").(event.DiceRolled)
	req.Equal(event.ScopeRoom, rolled.Audience().Scope)
}

func TestRoomWorker_HeroSelectionRequiresOwnership(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	req.NoError(h.store.Put(heroCard("h1", "alice", 3, 2)))

	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.SetSelection{
		Base:         domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Actor:        roomIdentity("bob"),
		Category:     domain.CategoryHero,
		CharacterIDs: []string{"h1"},
	})
	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("You can only select your own character", notice.Message)

	h.send(domain.SetSelection{
		Base:         domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Actor:        roomIdentity("alice"),
		Category:     domain.CategoryHero,
		CharacterIDs: []string{"h1"},
	})
	updated := h.expect("update_active_cards").(event.SelectionUpdated)
	req.Len(updated.Pools["alice"], 1)
	req.Equal("h1", updated.Pools["alice"][0].ID)
}

func TestRoomWorker_SelectionRejectsUnknownCharacter(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)

	h.send(domain.SetSelection{
		Base:         domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Actor:        roomIdentity("alice"),
		Category:     domain.CategoryHero,
		CharacterIDs: []string{"no-such-card"},
	})

	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Character not found", notice.Message)
}

func TestRoomWorker_StartEncounterIsFacilitatorOnly(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.StartEncounter{
		Base: domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Name: "Ambush", Kind: domain.KindConflict,
	})

	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Only the Room Master can start an event.", notice.Message)
	req.Equal([]string{"conn-b"}, notice.Audience().Connections)
}

func TestRoomWorker_ConflictFlow(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	h := startRoom(t)
	req.NoError(h.store.Put(heroCard("h1", "alice", 3, 2)))
	req.NoError(h.store.Put(statedCard("m1", domain.TypeMonster, "", 2, 1)))

	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	// Facilitator opens a conflict, which demands initiative from everyone.
	h.send(domain.StartEncounter{
		Base: domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Name: "Ambush", Kind: domain.KindConflict,
		Participants: []domain.EncounterSeed{
			{CharacterID: "h1", Side: domain.SideA},
			{CharacterID: "m1", Side: domain.SideB},
		},
	})
	started := h.expect("event_started").(event.EncounterStarted)
	req.Equal(domain.StatusPending, started.Encounter.Status)
	req.Len(started.Encounter.Participants, 2)
	encounterID := started.Encounter.ID
	req.NotEmpty(encounterID)
	h.expect("request_initiative_roll")

	// First roll keeps the encounter pending, second resolves the order.
	h.send(domain.SubmitInitiative{
		Base:        domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		EncounterID: encounterID, CharacterID: "h1", Initiative: 2,
	})
	updated := h.expect("event_updated").(event.EncounterUpdated)
	req.Equal(domain.StatusPending, updated.Encounter.Status)

	h.send(domain.SubmitInitiative{
		Base:        domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		EncounterID: encounterID, CharacterID: "m1", Initiative: 5,
	})
	updated = h.expect("event_updated").(event.EncounterUpdated)
	req.Equal(domain.StatusActive, updated.Encounter.Status)
	req.Equal([]string{"h1", "m1"}, updated.Encounter.TurnOrder)

	// An attack opens the target's reaction window and alerts the room.
	h.send(domain.DeclareAttack{
		Base:        domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		EncounterID: encounterID, AttackerID: "h1", TargetID: "m1",
		Hits: 2, HitLocation: "torso",
	})
	updated = h.expect("event_updated").(event.EncounterUpdated)
	req.True(updated.Encounter.Participant("m1").CanReact)

	alert := h.expect("incoming_attack_alert").(event.IncomingAttack)
	req.Equal("Name-h1", alert.AttackerName)
	req.Equal("https://cards.example/h1.png", alert.AttackerAvatar)
	req.Equal("m1", alert.TargetID)
	req.Equal(2, alert.Hits)

	// Declining the reaction closes the window and tells the room.
	h.send(domain.WaiveReaction{
		Base:        domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		EncounterID: encounterID, CharacterID: "m1",
	})
	updated = h.expect("event_updated").(event.EncounterUpdated)
	req.False(updated.Encounter.Participant("m1").CanReact)
	waived := h.expect("reaction_waived_notification").(event.ReactionWaived)
	req.Equal("Name-m1", waived.CharacterName)

	// Ending a turn out of order is refused.
	h.send(domain.EndTurn{
		Base:        domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		EncounterID: encounterID, CharacterID: "m1",
	})
	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Not your turn.", notice.Message)

	// Only the facilitator may close the encounter; the snapshot survives
	// in storage as Resolved.
	h.send(domain.EndEncounter{Base: domain.Base{Conn: "conn-a", RoomCode: testRoomCode}})
	ended := h.expect("event_ended").(event.EncounterEnded)
	req.Equal(encounterID, ended.EncounterID)

	stored, err := h.repo.Get(ctx, testRoomCode, encounterID)
	req.NoError(err)
	req.Equal(domain.StatusResolved, stored.Status)
}

type stubSearcher struct {
	lastQuery string
	hits      []event.SearchHit
}

func (s *stubSearcher) Search(ctx context.Context, roomCode, terms string, limit int) ([]event.SearchHit, error) {
	s.lastQuery = terms
	return s.hits, nil
}

func TestRoomWorker_FindCommandAnswersRequesterOnly(t *testing.T) {
	req := require.New(t)

	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	searcher := &stubSearcher{hits: []event.SearchHit{{UserID: "bob", Content: "the dragon attacks"}}}
	commands := make(chan domain.Command, 16)
	events := make(chan event.DomainEvent, 64)
	worker := NewRoomWorker(testRoomCode, commands, events, newFakeRegistry(),
		repositories.NewCharacterStore(db, log), repositories.NewEncounterRepository(db, log),
		searcher, rand.New(rand.NewSource(1)), log, func() {})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = worker.Run(ctx) }()

	h := &roomHarness{t: t, commands: commands, events: events}
	h.join("conn-a", "alice")
	h.drainJoin(true)

	h.send(domain.PostChat{
		Base:    domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Actor:   roomIdentity("alice"),
		UserID:  "alice",
		Content: "/find dragon",
	})

	results := h.expect("search_results").(event.SearchResults)
	req.Equal("dragon", searcher.lastQuery)
	req.Equal("dragon", results.Query)
	req.Len(results.Hits, 1)
	req.Equal([]string{"conn-a"}, results.Audience().Connections)
}

func TestRoomWorker_LastLeaveClosesRoom(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)

	h.send(domain.LeaveRoom{
		Base:   domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Actor:  roomIdentity("alice"),
		UserID: "alice",
	})

	select {
	case <-h.released:
	case <-time.After(time.Second):
		req.Fail("room was not released after the last participant left")
	}
	select {
	case err := <-h.done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker did not stop after the room emptied")
	}
}

func TestRoomWorker_DeleteRoomNotifiesEveryMember(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.DeleteRoom{Base: domain.Base{Conn: "conn-a", RoomCode: testRoomCode}})

	// The farewell names its recipients, so it survives the audience purge
	// that follows the room's release.
	deleted := h.expect("room_deleted")
	req.Equal(event.ScopeConnections, deleted.Audience().Scope)
	req.ElementsMatch([]string{"conn-a", "conn-b"}, deleted.Audience().Connections)

	select {
	case <-h.released:
	case <-time.After(time.Second):
		req.Fail("room was not released after deletion")
	}
	select {
	case err := <-h.done:
		req.NoError(err)
	case <-time.After(time.Second):
		req.Fail("worker did not stop after deletion")
	}
}

func TestRoomWorker_DeleteRoomIsFacilitatorOnly(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.DeleteRoom{Base: domain.Base{Conn: "conn-b", RoomCode: testRoomCode}})

	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Only the Room Master can delete the room.", notice.Message)
	req.ElementsMatch([]string{"conn-a", "conn-b"}, h.registry.members(testRoomCode))
}

func TestRoomWorker_JoinAndLeaveMaintainAudience(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)

	h.join("conn-a", "alice")
	h.drainJoin(true)
	req.ElementsMatch([]string{"conn-a"}, h.registry.members(testRoomCode))

	h.join("conn-b", "bob")
	h.drainJoin(false)
	req.ElementsMatch([]string{"conn-a", "conn-b"}, h.registry.members(testRoomCode))

	h.send(domain.LeaveRoom{
		Base:   domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Actor:  roomIdentity("bob"),
		UserID: "bob",
	})
	h.expect("user_left")
	h.expect("update_room_users")
	req.ElementsMatch([]string{"conn-a"}, h.registry.members(testRoomCode))
}

func TestRoomWorker_RejectedLeaveKeepsAudience(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	// Bob claims to be alice; the leave is refused and bob must remain a
	// full member, still reachable by room broadcasts.
	h.send(domain.LeaveRoom{
		Base:   domain.Base{Conn: "conn-b", RoomCode: testRoomCode},
		Actor:  roomIdentity("bob"),
		UserID: "alice",
	})
	notice := h.expect("error").(event.ErrorNotice)
	req.Equal("Authorization error: UserId does not match", notice.Message)
	req.ElementsMatch([]string{"conn-a", "conn-b"}, h.registry.members(testRoomCode))

	// A genuine disconnect still removes him, proving membership survived.
	h.send(domain.Disconnect{Base: domain.Base{Conn: "conn-b", RoomCode: testRoomCode}})
	left := h.expect("user_left").(event.UserLeft)
	req.Equal("bob", left.UserID)
	req.ElementsMatch([]string{"conn-a"}, h.registry.members(testRoomCode))
}

func TestRoomWorker_FacilitatorHiddenRollDeliveredOnce(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.RollDice{
		Base:   domain.Base{Conn: "conn-a", RoomCode: testRoomCode},
		Actor:  roomIdentity("alice"),
		UserID: "alice", UserName: "Alice", Roll: 4, Hidden: true,
	})

	rolled := h.expect("dice_roll").(event.DiceRolled)
	req.True(rolled.Hidden)
	req.Equal([]string{"conn-a"}, rolled.Audience().Connections)
}

func TestRoomWorker_FacilitatorLeavePromotesSuccessor(t *testing.T) {
	req := require.New(t)
	h := startRoom(t)
	h.join("conn-a", "alice")
	h.drainJoin(true)
	h.join("conn-b", "bob")
	h.drainJoin(false)

	h.send(domain.Disconnect{Base: domain.Base{Conn: "conn-a", RoomCode: testRoomCode}})

	promoted := h.expect("new_room_master").(event.NewFacilitator)
	req.Equal("bob", promoted.UserID)
	left := h.expect("user_left").(event.UserLeft)
	req.Equal("alice", left.UserID)
	roster := h.expect("update_room_users").(event.RosterUpdated)
	req.Len(roster.Users, 1)
	req.Equal(domain.RoleFacilitator, roster.Users[0].Role)
}
