package core

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// LogSinkFactory builds the per-service log destination opened by LOG_ON.
// Supplied by the logging adapter (internal/logging) so core stays free of
// any concrete log-rotation dependency.
type LogSinkFactory func(h Handle) (LogSink, error)

// commandState holds the pieces of runtime-command handling that don't fit
// naturally on Registry's already-large struct: exit-watchers for MONITOR
// and the log-sink factory for LOG_ON/LOG_OFF.
type commandState struct {
	mu          sync.Mutex
	watchAll    []Handle
	watchOne    map[Handle][]Handle
	logFactory  LogSinkFactory
	abort       func()
}

func (r *Registry) cmd() *commandState {
	r.cmdOnce.Do(func() {
		r.cmdState = &commandState{watchOne: make(map[Handle][]Handle)}
	})
	return r.cmdState
}

// SetLogSinkFactory wires LOG_ON's per-service log destination.
func (r *Registry) SetLogSinkFactory(f LogSinkFactory) { r.cmd().logFactory = f }

// SetAbortFunc wires the ABORT command to the coordinator's shutdown path.
func (r *Registry) SetAbortFunc(f func()) { r.cmd().abort = f }

// notifyExit is called by teardown for every service that finishes
// tearing down, delivering a MessageSystem notification to anyone who
// asked to MONITOR it (or MONITOR everything).
func (r *Registry) notifyExit(h Handle) {
	cs := r.cmdState
	if cs == nil {
		return
	}
	cs.mu.Lock()
	watchers := append([]Handle{}, cs.watchAll...)
	watchers = append(watchers, cs.watchOne[h]...)
	delete(cs.watchOne, h)
	cs.mu.Unlock()

	payload := []byte(h.String())
	for _, w := range watchers {
		_, _ = r.Send(0, w, NewSendType(MessageSystem, 0), 0, payload)
	}
}

// ExecCommand runs one text runtime command on behalf of h, for callers
// outside any service callback (the admin gRPC API, the AMQP command bus):
// it builds a throwaway Context scoped to h and dispatches through the same
// path a service's own Context.Command would.
func (r *Registry) ExecCommand(h Handle, cmd, args string) (string, error) {
	return r.dispatchCommand(&Context{reg: r, handle: h}, cmd, args)
}

// dispatchCommand implements the text command channel of spec.md section
// 6. Every command is scoped to the calling context's own handle where the
// original gives it no explicit target.
func (r *Registry) dispatchCommand(ctx *Context, cmd, args string) (string, error) {
	args = strings.TrimSpace(args)
	switch strings.ToUpper(cmd) {
	case "TIMEOUT":
		ticks, err := strconv.ParseInt(args, 10, 64)
		if err != nil {
			return "", fmt.Errorf("TIMEOUT: %w", err)
		}
		session := ctx.NewSession()
		ctx.Timeout(ticks, session)
		return strconv.FormatUint(uint64(session), 10), nil

	case "REGISTER":
		if err := r.SetName(args, ctx.handle); err != nil {
			return "", err
		}
		return ctx.handle.String(), nil

	case "NAME":
		parts := strings.Fields(args)
		if len(parts) != 2 {
			return "", fmt.Errorf("NAME: expected 'name :handle'")
		}
		h, ok := ParseHandle(parts[1])
		if !ok {
			return "", fmt.Errorf("NAME: bad handle %q", parts[1])
		}
		if err := r.SetName(parts[0], h); err != nil {
			return "", err
		}
		return "", nil

	case "QUERY":
		h, ok := r.FindByName(args)
		if !ok {
			return "", ErrNameUnresolved
		}
		return h.String(), nil

	case "EXIT":
		_ = r.Retire(ctx.handle)
		return "", nil

	case "KILL":
		h, ok := ParseHandle(args)
		if !ok {
			return "", fmt.Errorf("KILL: bad handle %q", args)
		}
		if err := r.Retire(h); err != nil {
			return "", err
		}
		return "", nil

	case "LAUNCH":
		parts := strings.SplitN(args, " ", 2)
		if len(parts) == 0 || parts[0] == "" {
			return "", fmt.Errorf("LAUNCH: missing module name")
		}
		modArgs := ""
		if len(parts) == 2 {
			modArgs = parts[1]
		}
		h, err := r.Create(parts[0], modArgs)
		if err != nil {
			return "", err
		}
		return h.String(), nil

	case "GET_ENV":
		v, ok := r.GetEnv(args)
		if !ok {
			return "", ErrNotFound
		}
		return v, nil

	case "SET_ENV":
		parts := strings.SplitN(args, " ", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("SET_ENV: expected 'key value'")
		}
		r.SetEnv(parts[0], parts[1])
		return "", nil

	case "START_TIME":
		return strconv.FormatInt(r.StartTime().Unix(), 10), nil

	case "ABORT":
		if f := r.cmd().abort; f != nil {
			f()
		}
		return "", nil

	case "MONITOR":
		cs := r.cmd()
		cs.mu.Lock()
		if args == "" {
			cs.watchAll = append(cs.watchAll, ctx.handle)
		} else {
			h, ok := ParseHandle(args)
			if !ok {
				cs.mu.Unlock()
				return "", fmt.Errorf("MONITOR: bad handle %q", args)
			}
			cs.watchOne[h] = append(cs.watchOne[h], ctx.handle)
		}
		cs.mu.Unlock()
		return "", nil

	case "STAT":
		svc := r.PeekSlot(ctx.handle)
		if svc == nil {
			return "", ErrUnknownDest
		}
		switch strings.ToLower(args) {
		case "mqlen":
			return strconv.Itoa(svc.MailboxLength()), nil
		case "is_blocked":
			if svc.IsBlocked() {
				return "1", nil
			}
			return "0", nil
		case "cpu":
			return strconv.FormatFloat(svc.CPUTime().Seconds(), 'f', 6, 64), nil
		case "time":
			return strconv.FormatInt(int64(svc.CPUTime()/1e6), 10), nil
		case "message":
			return strconv.FormatUint(svc.MessageCount(), 10), nil
		default:
			return "", fmt.Errorf("STAT: unknown field %q", args)
		}

	case "LOG_ON":
		h, ok := ParseHandle(args)
		if !ok {
			return "", fmt.Errorf("LOG_ON: bad handle %q", args)
		}
		svc := r.PeekSlot(h)
		if svc == nil {
			return "", ErrUnknownDest
		}
		factory := r.cmd().logFactory
		if factory == nil {
			return "", fmt.Errorf("LOG_ON: no log sink factory configured")
		}
		sink, err := factory(h)
		if err != nil {
			return "", err
		}
		svc.logWriter.Store(&sink)
		return "", nil

	case "LOG_OFF":
		h, ok := ParseHandle(args)
		if !ok {
			return "", fmt.Errorf("LOG_OFF: bad handle %q", args)
		}
		svc := r.PeekSlot(h)
		if svc == nil {
			return "", ErrUnknownDest
		}
		if old := svc.logWriter.Swap(nil); old != nil {
			_ = (*old).Close()
		}
		return "", nil

	case "SIGNAL":
		parts := strings.Fields(args)
		if len(parts) == 0 {
			return "", fmt.Errorf("SIGNAL: missing handle")
		}
		h, ok := ParseHandle(parts[0])
		if !ok {
			return "", fmt.Errorf("SIGNAL: bad handle %q", parts[0])
		}
		n := 0
		if len(parts) > 1 {
			n, _ = strconv.Atoi(parts[1])
		}
		svc := r.Grab(h)
		if svc == nil {
			return "", ErrUnknownDest
		}
		defer r.Release(svc)
		sigCtx := &Context{reg: r, handle: h}
		svc.module.Signal(sigCtx, svc.userData, n)
		return "", nil

	default:
		return "", fmt.Errorf("unknown command %q", cmd)
	}
}
