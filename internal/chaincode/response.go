package chaincode

import (
	"errors"

	"github.com/punchamoorthee/bankledger/internal/domain"
	"github.com/punchamoorthee/bankledger/internal/store"
)

// Response status codes, as carried back to the invoking client.
const (
	OK    int32 = 200
	ERROR int32 = 500
)

// Response is the outcome of one invocation. Kind is only meaningful when
// Status is ERROR.
type Response struct {
	Status  int32
	Message string
	Payload []byte
	Kind    domain.Kind
}

func (r Response) IsOK() bool { return r.Status == OK }

func Success(message string, payload []byte) Response {
	return Response{Status: OK, Message: message, Payload: payload}
}

// Error converts err into a failed Response. Store conflicts are reported
// as ConflictError whatever wraps them; errors without a Kind are internal
// and carry only their root cause.
func Error(err error) Response {
	if errors.Is(err, store.ErrConflict) {
		return Response{Status: ERROR, Kind: domain.KindConflict, Message: err.Error()}
	}
	kind := domain.KindOf(err)
	msg := err.Error()
	var derr *domain.Error
	if !errors.As(err, &derr) {
		msg = "invocation failed: " + domain.RootCause(err).Error()
	}
	return Response{Status: ERROR, Kind: kind, Message: msg}
}
