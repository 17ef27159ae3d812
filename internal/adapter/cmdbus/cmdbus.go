// Package cmdbus is the external command transport of spec.md section 6's
// "runtime command" surface reachable from outside the process: an AMQP
// topic exchange ("actor.cmd" by default) carrying one JSON-encoded
// {target, cmd, args} request per message, replied to on the AMQP
// reply-to queue the original skynet console's remote-admin socket has no
// equivalent of, but every deployment of this kind needs one regardless.
package cmdbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/webitel/actor-node/internal/breaker"
	"github.com/webitel/actor-node/internal/config"
	"github.com/webitel/actor-node/internal/core"
)

// Request is the wire shape of one inbound command-bus message.
type Request struct {
	Target string `json:"target"` // ":1a2b" numeric handle or a bare alias name
	Cmd    string `json:"cmd"`
	Args   string `json:"args"`
}

// Reply is the wire shape of the response published back to the AMQP
// message's ReplyTo queue, correlated via CorrelationID.
type Reply struct {
	Result string `json:"result"`
	Err    string `json:"err,omitempty"`
}

// Bus owns the AMQP publisher/subscriber pair and the router dispatching
// inbound command requests against the registry.
type Bus struct {
	reg       *core.Registry
	log       *slog.Logger
	exchange  string
	publisher message.Publisher
	router    *message.Router
	breakers  *breaker.Registry
}

// New builds a Bus connected to cfg.URL, consuming cfg.Exchange. Returns
// nil, nil if cfg.Enabled is false, so callers can wire it unconditionally
// and just check for a nil *Bus.
func New(cfg config.CmdBusConfig, reg *core.Registry, log *slog.Logger) (*Bus, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	wmLogger := watermill.NewSlogLogger(log)

	pubConfig := amqp.NewDurablePubSubConfig(cfg.URL, nil)
	pubConfig.Exchange = amqp.ExchangeConfig{
		GenerateName: func(topic string) string { return cfg.Exchange },
		Type:         "topic",
		Durable:      true,
	}
	publisher, err := amqp.NewPublisher(pubConfig, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("cmdbus: build publisher: %w", err)
	}

	subConfig := amqp.NewDurablePubSubConfig(cfg.URL, func(topic string) string {
		return cfg.Exchange + ".requests"
	})
	subConfig.Exchange = pubConfig.Exchange
	subscriber, err := amqp.NewSubscriber(subConfig, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("cmdbus: build subscriber: %w", err)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		_ = subscriber.Close()
		return nil, fmt.Errorf("cmdbus: build router: %w", err)
	}

	b := &Bus{
		reg:       reg,
		log:       log,
		exchange:  cfg.Exchange,
		publisher: publisher,
		router:    router,
		breakers:  breaker.NewRegistry(nil),
	}
	router.AddNoPublisherHandler(
		"cmdbus-dispatch",
		cfg.Exchange+".request",
		subscriber,
		b.handle,
	)
	return b, nil
}

// Run drives the router until ctx is cancelled. No-op on a nil Bus so
// callers can launch it unconditionally.
func (b *Bus) Run(ctx context.Context) error {
	if b == nil {
		return nil
	}
	return b.router.Run(ctx)
}

// Close releases the publisher/subscriber/router. No-op on a nil Bus.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	err := b.router.Close()
	if perr := b.publisher.Close(); err == nil {
		err = perr
	}
	return err
}

func (b *Bus) handle(msg *message.Message) error {
	var req Request
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		b.log.Warn("cmdbus: malformed request", "err", err)
		return nil // ack and drop: a malformed request will never parse on retry
	}

	result, cmdErr := b.dispatch(req)
	reply := Reply{Result: result}
	if cmdErr != nil {
		reply.Err = cmdErr.Error()
	}
	b.publishReply(msg, reply)
	return nil
}

func (b *Bus) dispatch(req Request) (string, error) {
	var h core.Handle
	if alias, ok := core.IsAlias(req.Target); ok {
		resolved, ok := b.reg.FindByName(alias)
		if !ok {
			return "", core.ErrNameUnresolved
		}
		h = resolved
	} else if parsed, ok := core.ParseHandle(req.Target); ok {
		h = parsed
	} else if resolved, ok := b.reg.FindByName(req.Target); ok {
		h = resolved
	} else {
		return "", fmt.Errorf("cmdbus: unresolvable target %q", req.Target)
	}
	return b.reg.ExecCommand(h, req.Cmd, req.Args)
}

// publishReply publishes reply to the AMQP reply-to queue named by in,
// tripping a per-queue circuit breaker so a stuck or unreachable replyTo
// consumer degrades to fast failures instead of every future reply
// blocking on the same dead queue.
func (b *Bus) publishReply(in *message.Message, reply Reply) {
	replyTo := in.Metadata.Get("reply_to")
	if replyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		b.log.Warn("cmdbus: marshal reply failed", "err", err)
		return
	}
	out := message.NewMessage(watermill.NewUUID(), payload)
	out.Metadata.Set("correlation_id", in.Metadata.Get("correlation_id"))

	err = b.breakers.Do(replyTo, func() error {
		return b.publisher.Publish(replyTo, out)
	})
	if err != nil {
		b.log.Warn("cmdbus: publish reply failed", "err", err, "reply_to", replyTo)
	}
}
