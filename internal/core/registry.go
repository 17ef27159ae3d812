package core

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const initialSlotCap = 4

type nameEntry struct {
	name   string
	handle Handle
}

// Registry is the service registry of spec.md section 4.1: it maps handles
// to services, hands out stable handles with concurrent create/release/
// lookup, and owns the reader/writer lock disciplining every structural
// change to the slot table and alias list.
type Registry struct {
	mu        sync.RWMutex
	slots     []*Service
	slotCap   uint32
	handleIdx uint32
	aliases   []nameEntry

	liveCount atomic.Int32

	rq       *readyQueue
	loader   ModuleLoader
	timer    Timer
	log      *slog.Logger
	env      sync.Map // string -> string, GET_ENV/SET_ENV
	start    time.Time

	defaultProfiling bool

	// nameCache is a bounded reverse lookup (handle -> last known name)
	// purely for diagnostics, read only through DiagnosticName (STAT, the
	// admin API and log lines do not consult it); the alias list above
	// remains the authoritative forward mapping.
	nameCache *lru.Cache[Handle, string]

	cmdOnce  sync.Once
	cmdState *commandState
}

// NewRegistry builds an empty registry. loader resolves module names for
// Create; log receives structural lifecycle events; profiling enables the
// per-service CPU accumulator by default (the "profile" config option).
func NewRegistry(loader ModuleLoader, log *slog.Logger, profiling bool) *Registry {
	cache, _ := lru.New[Handle, string](4096)
	return &Registry{
		slots:            make([]*Service, initialSlotCap),
		slotCap:          initialSlotCap,
		rq:               newReadyQueue(),
		loader:           loader,
		log:              log,
		start:            time.Now(),
		defaultProfiling: profiling,
		nameCache:        cache,
	}
}

// SetTimer wires the timing wheel adapter used by Context.Timeout. Called
// once during coordinator startup.
func (r *Registry) SetTimer(t Timer) { r.timer = t }

// readyQueuePtr exposes the global queue to the scheduler package-internally.
func (r *Registry) readyQueuePtr() *readyQueue { return r.rq }

// Count returns the number of currently live services.
func (r *Registry) Count() int { return int(r.liveCount.Load()) }

// StartTime returns the wall-clock time the registry was created (the
// START_TIME command).
func (r *Registry) StartTime() time.Time { return r.start }

// slotForLocked looks up the slot for h and verifies full handle equality,
// not just index equality — spec.md section 9's "Reference counting" note.
// Caller holds at least the reader lock.
func (r *Registry) slotForLocked(h Handle) *Service {
	idx := uint32(h) & (r.slotCap - 1)
	svc := r.slots[idx]
	if svc != nil && svc.handle == h {
		return svc
	}
	return nil
}

// PeekSlot returns the service at h without taking a strong reference. Used
// by the monitor (to flag blocked) and by diagnostics that do not intend to
// touch the service's mailbox.
func (r *Registry) PeekSlot(h Handle) *Service {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slotForLocked(h)
}

// growLocked doubles the slot table and rehashes every live service into
// it. Caller holds the writer lock.
func (r *Registry) growLocked() {
	newCap := r.slotCap * 2
	newSlots := make([]*Service, newCap)
	for _, svc := range r.slots {
		if svc != nil {
			newSlots[uint32(svc.handle)&(newCap-1)] = svc
		}
	}
	r.slots = newSlots
	r.slotCap = newCap
}

// allocHandleLocked finds the next free handle, growing the slot table if
// every slot within one lap is occupied. Caller holds the writer lock.
func (r *Registry) allocHandleLocked() Handle {
	for attempt := 0; attempt < 2; attempt++ {
		for i := uint32(0); i <= r.slotCap; i++ {
			r.handleIdx++
			if r.handleIdx > HandleMax {
				r.handleIdx = 1
			}
			h := Handle(r.handleIdx)
			idx := uint32(h) & (r.slotCap - 1)
			if r.slots[idx] == nil {
				return h
			}
		}
		r.growLocked()
	}
	// Unreachable in practice (would require 2^30 concurrently live
	// services); growLocked always frees room for the next lap.
	return Handle(r.handleIdx)
}

// Create instantiates a new service from the named module, matching
// spec.md section 4.1's Create/Errors paragraphs: the module must load and
// its Init hook must succeed, or the partially-built service is atomically
// unregistered.
func (r *Registry) Create(moduleName, args string) (Handle, error) {
	mod, err := r.loader.Load(moduleName)
	if err != nil {
		return 0, err
	}
	userData := mod.Create()

	r.mu.Lock()
	h := r.allocHandleLocked()
	svc := newService(h, mod, userData, r.defaultProfiling)
	r.slots[uint32(h)&(r.slotCap-1)] = svc
	r.liveCount.Add(1)
	r.mu.Unlock()

	ctx := &Context{reg: r, handle: h}
	if err := mod.Init(ctx, userData, args); err != nil {
		r.unregisterFailedLocked(h)
		return 0, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}

	svc.initialized.Store(true)
	r.log.Debug("service created", "handle", h, "module", moduleName)
	return h, nil
}

// unregisterFailedLocked removes a service whose Init hook failed.
func (r *Registry) unregisterFailedLocked(h Handle) {
	r.mu.Lock()
	idx := uint32(h) & (r.slotCap - 1)
	if svc := r.slots[idx]; svc != nil && svc.handle == h {
		r.slots[idx] = nil
		r.removeAliasesForLocked(h)
	}
	r.mu.Unlock()
	r.liveCount.Add(-1)
}

// Grab atomically verifies the slot still holds a live service with the
// exact handle and increments its refcount, following the CAS discipline
// that never resurrects a service whose count already reached zero.
func (r *Registry) Grab(h Handle) *Service {
	r.mu.RLock()
	svc := r.slotForLocked(h)
	r.mu.RUnlock()
	if svc == nil {
		return nil
	}
	for {
		cur := svc.refcount.Load()
		if cur <= 0 {
			return nil
		}
		if svc.refcount.CompareAndSwap(cur, cur+1) {
			return svc
		}
	}
}

// Release drops a strong reference obtained through Grab; at zero the
// service is torn down.
func (r *Registry) Release(svc *Service) {
	if svc.refcount.Add(-1) == 0 {
		r.teardown(svc)
	}
}

func (r *Registry) teardown(svc *Service) {
	ctx := &Context{reg: r, handle: svc.handle}
	if svc.module != nil {
		svc.module.Release(ctx, svc.userData)
	}
	if sink := svc.logWriter.Load(); sink != nil {
		_ = (*sink).Close()
	}
	svc.mailbox.drainToErrors(func(source Handle) {
		_, _ = r.Send(svc.handle, source, NewSendType(MessageError, 0), 0, nil)
	})
	r.liveCount.Add(-1)
	r.log.Debug("service torn down", "handle", svc.handle)
	r.notifyExit(svc.handle)
}

// Retire implements the two-phase teardown of spec.md section 4.1: clear
// the slot and aliases, release the registry's own refcount, and mark the
// mailbox for drain-then-free so in-flight sends surface as ERROR rather
// than vanishing silently.
func (r *Registry) Retire(h Handle) error {
	r.mu.Lock()
	svc := r.slotForLocked(h)
	if svc == nil {
		r.mu.Unlock()
		return ErrNotFound
	}
	idx := uint32(h) & (r.slotCap - 1)
	r.slots[idx] = nil
	r.removeAliasesForLocked(h)
	r.mu.Unlock()

	svc.mailbox.markReleasePending()
	r.Release(svc)
	return nil
}

// RetireAll retires every currently live service; used during shutdown.
func (r *Registry) RetireAll() {
	r.mu.RLock()
	handles := make([]Handle, 0, r.liveCount.Load())
	for _, svc := range r.slots {
		if svc != nil {
			handles = append(handles, svc.handle)
		}
	}
	r.mu.RUnlock()
	for _, h := range handles {
		_ = r.Retire(h)
	}
}

// Send implements spec.md section 4.1's send protocol in full: session
// allocation, payload copy-or-takeover, type encoding, and the error
// taxonomy of ADDRESS_INVALID / TOO_LARGE / UNKNOWN_DEST.
func (r *Registry) Send(src, dst Handle, t SendType, session uint32, payload []byte) (uint32, error) {
	if dst == 0 {
		if len(payload) > 0 {
			return 0, ErrAddressInvalid
		}
		return 0, nil
	}
	if uint64(len(payload)) > MaxPayloadSize {
		return 0, ErrTooLarge
	}

	if t.AllocSession() {
		session = r.allocSessionForSource(src)
	}

	var buf []byte
	if t.DontCopy() || payload == nil {
		buf = payload
	} else {
		buf = append([]byte(nil), payload...)
	}

	svc := r.Grab(dst)
	if svc == nil {
		return 0, ErrUnknownDest
	}
	msg := Message{Source: src, Session: session, Type: t.Type(), Payload: buf}
	err := svc.mailbox.push(msg, r.rq)
	r.Release(svc)
	if err != nil {
		return 0, err
	}
	return session, nil
}

var anonymousSession atomic.Uint32

// allocSessionForSource mints a fresh session from the sender's own
// counter when a live service, falling back to a node-wide counter for
// system-originated sends (src==0, e.g. the reactor or timing wheel).
func (r *Registry) allocSessionForSource(src Handle) uint32 {
	if src == 0 {
		for {
			cur := anonymousSession.Load()
			next := cur + 1
			if next == 0 {
				next = 1
			}
			if anonymousSession.CompareAndSwap(cur, next) {
				return next
			}
		}
	}
	if svc := r.PeekSlot(src); svc != nil {
		return svc.allocSession()
	}
	return 0
}

// SendByName resolves name and sends to the resulting handle.
func (r *Registry) SendByName(src Handle, name string, t SendType, session uint32, payload []byte) (uint32, error) {
	dst, ok := r.FindByName(name)
	if !ok {
		return 0, ErrNameUnresolved
	}
	return r.Send(src, dst, t, session, payload)
}

// SetName binds name to handle (REGISTER / NAME commands). Aliases are
// kept sorted by name to permit binary search, per spec.md section 3.
func (r *Registry) SetName(name string, handle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slotForLocked(handle) == nil {
		return ErrUnknownDest
	}
	i := sort.Search(len(r.aliases), func(i int) bool { return r.aliases[i].name >= name })
	if i < len(r.aliases) && r.aliases[i].name == name {
		r.aliases[i].handle = handle
	} else {
		r.aliases = append(r.aliases, nameEntry{})
		copy(r.aliases[i+1:], r.aliases[i:])
		r.aliases[i] = nameEntry{name: name, handle: handle}
	}
	r.nameCache.Add(handle, name)
	return nil
}

// FindByName resolves an alias to its handle via binary search.
func (r *Registry) FindByName(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i := sort.Search(len(r.aliases), func(i int) bool { return r.aliases[i].name >= name })
	if i < len(r.aliases) && r.aliases[i].name == name {
		return r.aliases[i].handle, true
	}
	return 0, false
}

// removeAliasesForLocked strips every alias pointing at h. Caller holds the
// writer lock.
func (r *Registry) removeAliasesForLocked(h Handle) {
	out := r.aliases[:0]
	for _, e := range r.aliases {
		if e.handle != h {
			out = append(out, e)
		}
	}
	r.aliases = out
}

// DiagnosticName returns the best-known name for h (from the reverse LRU
// cache populated by SetName), or "" if none was ever registered.
func (r *Registry) DiagnosticName(h Handle) string {
	if name, ok := r.nameCache.Get(h); ok {
		return name
	}
	return ""
}

// GetEnv/SetEnv back the GET_ENV/SET_ENV commands with a process-wide map
// independent of the startup Config, since services may set environment
// values after startup that later LAUNCHed services must observe.
func (r *Registry) GetEnv(key string) (string, bool) {
	v, ok := r.env.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (r *Registry) SetEnv(key, value string) {
	r.env.Store(key, value)
}
