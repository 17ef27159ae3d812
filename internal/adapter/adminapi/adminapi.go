// Package adminapi is the gRPC admin surface of spec.md section 6: Send,
// Stat, Kill, Launch, Register, and Query exposed as RPCs rather than text
// lines on a console socket. Requests and responses are plain
// structpb.Struct values rather than a generated .proto stub — the
// well-known dynamic-value types carry the handful of string/number fields
// each call needs without introducing a code-generation step into a
// no-toolchain build.
package adminapi

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/webitel/actor-node/internal/core"
)

// Server implements the admin RPCs directly against a core.Registry.
type Server struct {
	reg *core.Registry
	log *slog.Logger
	gs  *grpc.Server
	lis net.Listener
}

// New builds an admin server bound to addr, not yet accepting connections.
func New(addr string, reg *core.Registry, log *slog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("adminapi: listen %s: %w", addr, err)
	}
	s := &Server{reg: reg, log: log, lis: lis}
	s.gs = grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(s.recover))),
	)
	s.gs.RegisterService(&serviceDesc, s)
	return s, nil
}

func (s *Server) recover(ctx context.Context, p any) error {
	s.log.Error("admin rpc panicked", "panic", p)
	return fmt.Errorf("adminapi: internal error")
}

// Serve blocks accepting admin RPCs until Stop is called.
func (s *Server) Serve() error { return s.gs.Serve(s.lis) }

// Stop gracefully drains in-flight RPCs and closes the listener.
func (s *Server) Stop() { s.gs.GracefulStop() }

// Addr returns the bound listen address (useful when addr was ":0").
func (s *Server) Addr() string { return s.lis.Addr().String() }

func getString(req *structpb.Struct, key string) string {
	if req == nil {
		return ""
	}
	if v, ok := req.Fields[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func resultStruct(result string, err error) (*structpb.Struct, error) {
	fields := map[string]any{"result": result}
	if err != nil {
		fields["error"] = err.Error()
	}
	st, buildErr := structpb.NewStruct(fields)
	if buildErr != nil {
		return nil, buildErr
	}
	return st, nil
}

func resolveHandle(reg *core.Registry, target string) (core.Handle, error) {
	if alias, ok := core.IsAlias(target); ok {
		h, ok := reg.FindByName(alias)
		if !ok {
			return 0, core.ErrNameUnresolved
		}
		return h, nil
	}
	if h, ok := core.ParseHandle(target); ok {
		return h, nil
	}
	if h, ok := reg.FindByName(target); ok {
		return h, nil
	}
	return 0, fmt.Errorf("adminapi: unresolvable target %q", target)
}

// Send implements the Send RPC: deliver a text payload to target.
func (s *Server) Send(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := resolveHandle(s.reg, getString(req, "target"))
	if err != nil {
		return resultStruct("", err)
	}
	session, err := s.reg.Send(0, h, core.NewSendType(core.MessageText, core.FlagAllocSession), 0, []byte(getString(req, "payload")))
	if err != nil {
		return resultStruct("", err)
	}
	return resultStruct(fmt.Sprintf("%d", session), nil)
}

// Stat implements the Stat RPC against target's own STAT command surface.
// With a "field" it returns that one STAT field; without one it returns
// every field as space-separated name=value pairs.
func (s *Server) Stat(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := resolveHandle(s.reg, getString(req, "target"))
	if err != nil {
		return resultStruct("", err)
	}
	if field := getString(req, "field"); field != "" {
		result, err := s.reg.ExecCommand(h, "STAT", field)
		return resultStruct(result, err)
	}
	result := ""
	for _, field := range []string{"mqlen", "is_blocked", "cpu", "time", "message"} {
		v, err := s.reg.ExecCommand(h, "STAT", field)
		if err != nil {
			return resultStruct("", err)
		}
		if result != "" {
			result += " "
		}
		result += field + "=" + v
	}
	return resultStruct(result, nil)
}

// Kill implements the Kill RPC: retire target.
func (s *Server) Kill(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := resolveHandle(s.reg, getString(req, "target"))
	if err != nil {
		return resultStruct("", err)
	}
	return resultStruct("", s.reg.Retire(h))
}

// Launch implements the Launch RPC: create a new service instance.
func (s *Server) Launch(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := s.reg.Create(getString(req, "module"), getString(req, "args"))
	if err != nil {
		return resultStruct("", err)
	}
	return resultStruct(h.String(), nil)
}

// Register implements the Register RPC: bind an alias name to target.
func (s *Server) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, err := resolveHandle(s.reg, getString(req, "target"))
	if err != nil {
		return resultStruct("", err)
	}
	return resultStruct("", s.reg.SetName(getString(req, "name"), h))
}

// Query implements the Query RPC: resolve an alias to its handle.
func (s *Server) Query(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	h, ok := s.reg.FindByName(getString(req, "name"))
	if !ok {
		return resultStruct("", core.ErrNameUnresolved)
	}
	return resultStruct(h.String(), nil)
}
