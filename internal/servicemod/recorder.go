package servicemod

import (
	"sync"

	"github.com/webitel/actor-node/internal/core"
)

// recorderModule stores the most recent message it was sent for test
// inspection, the "B" half of the echo-pair scenario (spec.md section 8).
type recorderModule struct{}

// NewRecorderModule returns a core.ModuleFactory for the "recorder" module.
func NewRecorderModule() core.ModuleFactory {
	return func() core.Module { return &recorderModule{} }
}

// RecorderState is the userData a recorder service exposes; tests reach it
// through core.Registry.PeekSlot + a type assertion on the module's own
// Create() return value, not through any exported registry accessor.
type RecorderState struct {
	mu      sync.Mutex
	Type    core.MessageType
	Session uint32
	Source  core.Handle
	Payload []byte
	Count   int
}

// Snapshot returns a copy of the last recorded message under lock.
func (s *RecorderState) Snapshot() (core.MessageType, uint32, core.Handle, []byte, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Type, s.Session, s.Source, append([]byte(nil), s.Payload...), s.Count
}

func (m *recorderModule) Create() any { return &RecorderState{} }

func (m *recorderModule) Init(ctx *core.Context, userData any, args string) error { return nil }

func (m *recorderModule) Release(ctx *core.Context, userData any) {}

func (m *recorderModule) Signal(ctx *core.Context, userData any, n int) {}

func (m *recorderModule) Callback(ctx *core.Context, userData any, msgType core.MessageType, session uint32, source core.Handle, payload []byte) bool {
	st := userData.(*RecorderState)
	st.mu.Lock()
	st.Type = msgType
	st.Session = session
	st.Source = source
	st.Payload = append(st.Payload[:0], payload...)
	st.Count++
	st.mu.Unlock()
	return false
}
