// Package coordinator wires internal/core, internal/wheel, and
// internal/reactor together into one running node: it owns the adapters
// that let the otherwise import-cycle-free packages talk to each other,
// starts and stops every background goroutine, and runs the node's
// bootstrap service list.
package coordinator

import (
	"github.com/webitel/actor-node/internal/core"
	"github.com/webitel/actor-node/internal/reactor"
	"github.com/webitel/actor-node/internal/wheel"
)

// timerAdapter satisfies core.Timer over a wheel.Wheel, translating the
// registry's Handle type to the wheel's handle-agnostic uint32.
type timerAdapter struct {
	w *wheel.Wheel
}

func (a timerAdapter) Add(handle core.Handle, ticks int64, session uint32) {
	a.w.Add(uint32(handle), ticks, session)
}

// wheelResponder satisfies wheel.Responder by delivering an expired timer
// as a RESPONSE message through the registry, exactly as spec.md section
// 4.4 describes timer expiration turning into a normal send.
type wheelResponder struct {
	reg *core.Registry
}

func (w wheelResponder) Respond(handle uint32, session uint32) {
	_, _ = w.reg.Send(0, core.Handle(handle), core.NewSendType(core.MessageResponse, 0), session, nil)
}

// socketDeliver builds a reactor.Deliver that forwards every socket event
// to its owning service as a MessageSocket send, framed the way spec.md
// section 4.3 describes the original's skynet_socket_message: a one-byte
// event-kind tag followed by event-specific data.
func socketDeliver(reg *core.Registry) reactor.Deliver {
	return func(ev reactor.Event) {
		if ev.Owner == 0 {
			return
		}
		payload := encodeSocketEvent(ev)
		_, _ = reg.Send(0, core.Handle(ev.Owner), core.NewSendType(core.MessageSocket, 0), 0, payload)
	}
}

// socketEvent wire tags, matching reactor.EventKind order so the tag byte
// is stable across a restart.
const (
	sockEvData EventTag = iota
	sockEvClose
	sockEvOpen
	sockEvAccept
	sockEvError
	sockEvExit
	sockEvUDP
	sockEvWarning
)

// EventTag is the one-byte discriminant at payload[0] of a MessageSocket
// send, telling the receiving module which reactor.EventKind produced it.
type EventTag uint8

func encodeSocketEvent(ev reactor.Event) []byte {
	tag := EventTag(ev.Kind)
	buf := make([]byte, 0, 5+len(ev.Data)+len(ev.UDPAddr))
	buf = append(buf, byte(tag))
	buf = appendUint32(buf, uint32(ev.ID))
	switch ev.Kind {
	case reactor.EventUDP:
		buf = append(buf, byte(len(ev.UDPAddr)))
		buf = append(buf, ev.UDPAddr...)
		buf = append(buf, ev.Data...)
	case reactor.EventData, reactor.EventWarning:
		buf = append(buf, ev.Data...)
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
