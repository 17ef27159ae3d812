package core

import "math"

// MessageType is the wire tag stored in the high byte of the original
// protocol's size field (spec.md section 6). In this implementation it is
// carried as its own field on Message rather than packed into a size
// integer, but the tag values are kept identical so logs and the admin API
// stay compatible with the original wire format's vocabulary.
type MessageType uint8

const (
	MessageText MessageType = iota
	MessageResponse
	MessageMulticast
	MessageClient
	MessageSystem
	MessageHarbor
	MessageSocket
	MessageError
	MessageReservedQueue
	MessageReservedDebug
	MessageLua
	MessageSnax
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageResponse:
		return "response"
	case MessageMulticast:
		return "multicast"
	case MessageClient:
		return "client"
	case MessageSystem:
		return "system"
	case MessageHarbor:
		return "harbor"
	case MessageSocket:
		return "socket"
	case MessageError:
		return "error"
	case MessageReservedQueue:
		return "reserved-queue"
	case MessageReservedDebug:
		return "reserved-debug"
	case MessageLua:
		return "lua"
	case MessageSnax:
		return "snax"
	default:
		return "unknown"
	}
}

// SendType is the argument send() callers pass in place of a bare
// MessageType: the low 8 bits hold the type tag, the higher bits carry the
// DontCopy/AllocSession flags, exactly as spec.md section 3 describes the
// original's combined size-and-type field flags.
type SendType uint32

const (
	FlagDontCopy     SendType = 1 << 16
	FlagAllocSession SendType = 1 << 17
)

// Type extracts the MessageType tag.
func (t SendType) Type() MessageType { return MessageType(t & 0xff) }

// DontCopy reports whether the caller has already relinquished ownership of
// the payload buffer (the runtime must not copy it).
func (t SendType) DontCopy() bool { return t&FlagDontCopy != 0 }

// AllocSession reports whether the runtime should mint a fresh session
// rather than use the caller-supplied one.
func (t SendType) AllocSession() bool { return t&FlagAllocSession != 0 }

// NewSendType builds a SendType from a bare tag plus optional flags, e.g.
// NewSendType(MessageText, FlagDontCopy|FlagAllocSession).
func NewSendType(t MessageType, flags SendType) SendType {
	return SendType(t) | flags
}

// MaxPayloadSize is the original protocol's MESSAGE_TYPE_MASK = SIZE_MAX>>8,
// computed here against a 64-bit size_t to match a modern target platform.
const MaxPayloadSize = uint64(math.MaxUint64) >> 8

// Message is the unit of delivery placed into a Mailbox.
type Message struct {
	Source  Handle
	Session uint32
	Type    MessageType
	Payload []byte
}
