//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"gameroom-lab/domain/event"
)

type WorkerName string

// Worker doesn't protect itself: supervision (panic recovery, restart)
// lives in the Supervisor.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// for logging and supervision purposes, avoiding manual naming in the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives outbound notifications for one connection (or one
// in-process consumer such as the chat archive).
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry maps live connections to sinks and room membership; the fanout
// resolves event audiences through it. A connection registers its sink on
// open (before any room join) so targeted notices reach it even when a join
// is rejected.
type IRegistry interface {
	SinksForRoom(roomCode string) []EventSink
	SinksForConnections(connIDs []string) []EventSink
	Connect(connID string, sink EventSink)
	Disconnect(connID string)
	JoinRoom(connID, roomCode string)
	LeaveRoom(connID, roomCode string)
	PurgeRoom(roomCode string)
}
