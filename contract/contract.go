//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker) <-chan struct{}
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
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

// Conn is one live client connection as seen by the fan-out layer.
// Send must not block: a full or closed connection returns an error, and a
// connection that refuses a frame closes itself.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

type IRegistry interface {
	Register(roomID domain.RoomID, conn Conn)
	Unregister(roomID domain.RoomID, conn Conn) bool
	BroadcastLocal(roomID domain.RoomID, payload []byte) int
	IsEmpty(roomID domain.RoomID) bool
	Count(roomID domain.RoomID) int
}

// ListenerLease is what a room listener holds on its own registration.
// Release reports whether the listener must terminate and, if so, deregisters it.
type ListenerLease interface {
	MarkReady()
	Release() bool
}
