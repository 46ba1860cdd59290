package clients

import "github.com/voltgrid/voltgrid/pkg/messages"

// InboundMessage is the envelope transports put on the message queue:
// a decoded payload stamped with the session it came from.
type InboundMessage struct {
	SessionID uint32
	Payload   messages.Payload
}
