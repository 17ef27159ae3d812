package core

import "time"

// Timer is the seam the registry uses to schedule a deferred RESPONSE
// message without importing the wheel package directly (it would create an
// import cycle: the wheel needs to call back into the registry to deliver
// expirations). Implemented by a thin adapter the coordinator wires over
// internal/wheel.Wheel.
type Timer interface {
	Add(handle Handle, ticks int64, session uint32)
}

// Context is the service_context equivalent: the handle a running
// callback (or an init/release/signal hook) uses to act on the runtime —
// send messages, start timers, and issue runtime commands — scoped to its
// own service.
type Context struct {
	reg    *Registry
	handle Handle
}

// Handle returns the handle of the service this context belongs to.
func (c *Context) Handle() Handle { return c.handle }

// Send implements spec.md section 6's send primitive. src=0 means "use
// this context's own handle as source".
func (c *Context) Send(src, dst Handle, t SendType, session uint32, payload []byte) (uint32, error) {
	if src == 0 {
		src = c.handle
	}
	return c.reg.Send(src, dst, t, session, payload)
}

// SendByName resolves name to a handle and sends to it.
func (c *Context) SendByName(src Handle, name string, t SendType, session uint32, payload []byte) (uint32, error) {
	dst, ok := c.reg.FindByName(name)
	if !ok {
		return 0, ErrNameUnresolved
	}
	return c.Send(src, dst, t, session, payload)
}

// NewSession allocates a fresh session id from this context's own service.
func (c *Context) NewSession() uint32 {
	svc := c.reg.PeekSlot(c.handle)
	if svc == nil {
		return 0
	}
	return svc.allocSession()
}

// Timeout schedules a RESPONSE message to be delivered to this context's
// own handle after ticks 10ms ticks, carrying session. ticks<=0 delivers
// immediately, per spec.md section 4.4.
func (c *Context) Timeout(ticks int64, session uint32) {
	if ticks <= 0 {
		_, _ = c.reg.Send(0, c.handle, NewSendType(MessageResponse, 0), session, nil)
		return
	}
	if c.reg.timer != nil {
		c.reg.timer.Add(c.handle, ticks, session)
	}
}

// Command dispatches one text runtime command (spec.md section 6) on
// behalf of this context and returns the textual reply.
func (c *Context) Command(cmd, args string) (string, error) {
	return c.reg.dispatchCommand(c, cmd, args)
}

// Now returns the wall-clock time at which this call is made.
func (c *Context) Now() time.Time { return time.Now() }
