package domain

import (
	"errors"
	"fmt"
)

var (
	// захват микрофона
	ErrPermissionDenied = errors.New("permission denied")
	ErrDeviceNotFound   = errors.New("device not found")
	ErrUnsupported      = errors.New("unsupported")

	// хранилище документов
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrStoreWriteFailed = errors.New("store write failed")

	// ограничено одной Peer сессией, наружу не пробрасывается
	ErrNegotiationFailed = errors.New("negotiation failed")

	ErrAlreadyJoined     = errors.New("already joined")
	ErrNotJoined         = errors.New("not joined")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidSignal     = errors.New("invalid signal")
)

// Error - ошибка операции с сохранением причины
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op string, err error) *Error {
	return &Error{Op: op, Err: err}
}

// IsMediaError сообщает, относится ли ошибка к захвату микрофона
func IsMediaError(err error) bool {
	return errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrUnsupported)
}

// RemediationHint возвращает подсказку пользователю для ошибок захвата аудио
func RemediationHint(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Please allow microphone permissions."
	case errors.Is(err, ErrDeviceNotFound):
		return "No microphone found. Check MEDIA_DEVICE."
	case errors.Is(err, ErrUnsupported):
		return "Audio capture is not supported for this device. Use \"silence\" or an Ogg/Opus file."
	case errors.Is(err, ErrStoreUnavailable):
		return "Room store is unreachable. Check the store address and try again."
	case errors.Is(err, ErrAlreadyJoined):
		return "Leave the current room before joining another one."
	default:
		return "Please check permissions and try again."
	}
}
