package errors

import (
	stderrors "errors"
	"net/http"
)

func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// MapToHTTPStatus translates the taxonomy into REST status codes.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case Is(err, ErrPeerNotFound), Is(err, ErrUserNotFound), Is(err, ErrRoomNotFound):
		return http.StatusNotFound
	case Is(err, ErrSelfRoom), Is(err, ErrBlankMessage):
		return http.StatusBadRequest
	case Is(err, ErrStoreUnavailable), Is(err, ErrBusUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
