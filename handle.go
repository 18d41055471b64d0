package courier

import (
	"reflect"

	"github.com/google/uuid"
)

// Handle identifies one registered callback. Go functions cannot be compared, so
// removing a single callback goes through the handle Subscribe returned for it.
type Handle struct {
	id          uuid.UUID
	messageType reflect.Type
}

// ID returns the handle as a string.
func (h Handle) ID() string {
	return h.id.String()
}

// Valid is false for the zero handle returned when a subscription was rejected.
func (h Handle) Valid() bool {
	return h.id != uuid.Nil
}

// MessageType returns the message type the callback was registered for.
func (h Handle) MessageType() reflect.Type {
	return h.messageType
}
