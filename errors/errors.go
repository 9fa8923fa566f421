package errors

import "fmt"

var (
	ErrWorkerPanic      = fmt.Errorf("worker panic")
	ErrUnauthorized     = fmt.Errorf("unauthorized")
	ErrPeerNotFound     = fmt.Errorf("peer not found")
	ErrUserNotFound     = fmt.Errorf("user not found")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrSelfRoom         = fmt.Errorf("a room needs two distinct participants")
	ErrStoreUnavailable = fmt.Errorf("store unavailable")
	ErrCacheUnavailable = fmt.Errorf("cache unavailable")
	ErrCacheMiss        = fmt.Errorf("cache miss")
	ErrSubscriptionLost = fmt.Errorf("subscription lost")
	ErrBusUnavailable   = fmt.Errorf("bus unavailable")
	ErrConnectionClosed = fmt.Errorf("connection closed")
	ErrSendBufferFull   = fmt.Errorf("send buffer full")
	ErrBlankMessage     = fmt.Errorf("blank message")
	ErrListenerNotReady = fmt.Errorf("room listener not ready")
	ErrInvalidCharacter = fmt.Errorf("replacement must be a single character")
	ErrEmptyWords       = fmt.Errorf("no words have been found")
)
