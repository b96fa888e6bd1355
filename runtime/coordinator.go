package runtime

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"gameroom-lab/contract"
	"gameroom-lab/domain"
	"gameroom-lab/domain/event"
	apperrors "gameroom-lab/errors"
	"gameroom-lab/moderation"
	"gameroom-lab/repositories"
	"gameroom-lab/runtime/workers"
)

//go:embed censored/*
var censoredFolder embed.FS

// Coordinator routes inbound commands to per-room workers and owns the
// event pipeline behind them (moderation, fanout). Rooms are created
// lazily on the first join of a valid code and torn down by their worker
// when the last participant leaves.
type Coordinator struct {
	mu              sync.Mutex
	log             *slog.Logger
	supervisor      contract.ISupervisor
	registry        contract.IRegistry
	characters      repositories.ICharacterStore
	encounters      repositories.IEncounterRepository
	searcher        workers.Searcher
	permanentSinks  []contract.EventSink
	rooms           map[string]chan domain.Command
	rawEvents       chan event.DomainEvent
	domainEvents    chan event.DomainEvent
	bufferSize      int
	charReplacement rune
	runCtx          context.Context
}

func NewCoordinator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	registry contract.IRegistry,
	characters repositories.ICharacterStore,
	encounters repositories.IEncounterRepository,
	searcher workers.Searcher,
	bufferSize int,
	charReplacement rune,
) *Coordinator {
	return &Coordinator{
		log:             log,
		supervisor:      supervisor,
		registry:        registry,
		characters:      characters,
		encounters:      encounters,
		searcher:        searcher,
		rooms:           make(map[string]chan domain.Command),
		rawEvents:       make(chan event.DomainEvent, bufferSize),
		domainEvents:    make(chan event.DomainEvent, bufferSize),
		bufferSize:      bufferSize,
		charReplacement: charReplacement,
	}
}

// Add registers permanent sinks (chat archive, search index) that receive
// every event. Must be called before Start.
func (c *Coordinator) Add(sinks ...contract.EventSink) {
	c.permanentSinks = append(c.permanentSinks, sinks...)
}

// Start prepares the pipeline workers and launches the supervisor. Heavy
// preparation (wordlist I/O, Aho-Corasick build) happens before anything
// runs. Start does not block; Stop shuts the pipeline down.
func (c *Coordinator) Start(ctx context.Context) error {
	moderationWorker, err := c.prepareModeration("censored")
	if err != nil {
		return err
	}

	fanoutWorker := workers.NewEventFanout(c.log, c.domainEvents, c.registry).
		Add(c.permanentSinks...)

	c.mu.Lock()
	c.runCtx = ctx
	c.supervisor.Add(moderationWorker, fanoutWorker)
	c.mu.Unlock()

	c.log.Info("Starting coordinator and all supervised workers")
	go c.supervisor.Run(ctx)
	return nil
}

// prepareModeration loads censored wordlists and builds the automaton.
func (c *Coordinator) prepareModeration(path string) (contract.Worker, error) {
	loader := NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll(path)
	if err != nil {
		return nil, err
	}

	c.log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	c.log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	moderator, err := moderation.NewModerator(data.Words, c.charReplacement)
	if err != nil {
		return nil, err
	}

	return workers.NewModerationWorker(moderator, c.rawEvents, c.domainEvents, c.log), nil
}

// Dispatch hands a command to its room's worker, creating the room when a
// join names a well-formed code nobody claimed yet. Any other command for
// an unknown room is rejected. The send blocks until the worker accepts
// the command or ctx expires; acceptance order is the room's processing
// order. Registry audience bookkeeping is the worker's job, done only
// after a command passed validation.
func (c *Coordinator) Dispatch(ctx context.Context, cmd domain.Command) error {
	c.mu.Lock()
	commands, exists := c.rooms[cmd.Room()]
	if !exists {
		if _, isJoin := cmd.(domain.JoinRoom); !isJoin {
			c.mu.Unlock()
			return apperrors.ErrNotFound
		}
		if !domain.ValidRoomCode(cmd.Room()) {
			c.mu.Unlock()
			return apperrors.ErrInvalidFormat
		}
		commands = c.openRoom(cmd.Room())
	}
	c.mu.Unlock()

	select {
	case commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openRoom spins up a worker for a fresh room code. Caller holds the lock.
func (c *Coordinator) openRoom(roomCode string) chan domain.Command {
	commands := make(chan domain.Command, c.bufferSize)
	c.rooms[roomCode] = commands

	worker := workers.NewRoomWorker(
		roomCode,
		commands,
		c.rawEvents,
		c.registry,
		c.characters,
		c.encounters,
		c.searcher,
		rand.New(rand.NewSource(time.Now().UnixNano())),
		c.log,
		func() { c.closeRoom(roomCode) },
	)

	c.log.Info("Opening room", "room", roomCode)
	c.supervisor.Start(c.runCtx, worker)
	return commands
}

// closeRoom drops a dead room's routing entry and its registry audience.
// Invoked from the worker goroutine, so it must not touch worker state.
func (c *Coordinator) closeRoom(roomCode string) {
	c.mu.Lock()
	delete(c.rooms, roomCode)
	c.mu.Unlock()
	c.registry.PurgeRoom(roomCode)
	c.log.Info("Room closed", "room", roomCode)
}

// Stop cancels the supervision context; workers drain and exit.
func (c *Coordinator) Stop() {
	c.log.Info("Requesting coordinator shutdown")
	c.supervisor.Stop()
}
