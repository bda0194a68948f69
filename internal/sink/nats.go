package sink

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/muurk/groundlink/internal/logging"
	"github.com/muurk/groundlink/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubjectPrefix is the first token of every groundlink subject.
const DefaultSubjectPrefix = "groundlink"

// Publisher is the part of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// Subscriber is the part of *nats.Conn the command path needs.
type Subscriber interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// ConnectNATS dials a NATS server and keeps reconnecting forever.
func ConnectNATS(url, clientName string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}

// NATSSink publishes records as JSON.
type NATSSink struct {
	conn   Publisher
	prefix string
	closer func()
}

// NewNATSSink publishes on conn. An empty prefix means DefaultSubjectPrefix.
func NewNATSSink(conn Publisher, prefix string) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	s := &NATSSink{conn: conn, prefix: prefix}
	if nc, ok := conn.(*nats.Conn); ok {
		s.closer = nc.Close
	}
	return s
}

// Subject returns the subject a record is published on.
func (s *NATSSink) Subject(rec Record) string {
	kind := "tlm"
	if rec.Direction == DirectionWrite {
		kind = "sent"
	}
	return fmt.Sprintf("%s.%s.%s.%s", s.prefix, kind, token(rec.Target), token(rec.Packet))
}

// Publish sends rec on its own subject, and reads also on "<prefix>.tlm.all".
func (s *NATSSink) Publish(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := s.conn.Publish(s.Subject(rec), data); err != nil {
		return fmt.Errorf("failed to publish to NATS: %w", err)
	}
	if rec.Direction == DirectionRead {
		if err := s.conn.Publish(s.prefix+".tlm.all", data); err != nil {
			return fmt.Errorf("failed to publish to NATS: %w", err)
		}
	}
	return nil
}

// Close closes the connection when the sink was built on a *nats.Conn.
func (s *NATSSink) Close() error {
	if s.closer != nil {
		s.closer()
	}
	return nil
}

// Command is the JSON body of a command message.
type Command struct {
	Target string `json:"target,omitempty"`
	Packet string `json:"packet,omitempty"`
	Hex    string `json:"hex"`
}

// ToPacket decodes the command into a packet.
func (c Command) ToPacket(defaultTarget string) (*protocol.Packet, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(c.Hex), "0x"), "0X")
	if raw == "" {
		return nil, errors.New("command has no hex payload")
	}
	data, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid command hex: %w", err)
	}

	target := c.Target
	if target == "" {
		target = defaultTarget
	}
	name := c.Packet
	if name == "" {
		name = "COMMAND"
	}
	return protocol.NewPacket(target, name, data), nil
}

// CommandSubject returns the subject commands for ifaceName arrive on.
func CommandSubject(prefix, ifaceName string) string {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return fmt.Sprintf("%s.cmd.%s", prefix, token(ifaceName))
}

// SubscribeCommands writes every command published for ifaceName through
// write. Request/reply callers get {"status":"sent"} or {"error":"..."}.
func SubscribeCommands(ctx context.Context, conn Subscriber, prefix, ifaceName, target string, write func(ctx context.Context, pkt *protocol.Packet) error) (*nats.Subscription, error) {
	subject := CommandSubject(prefix, ifaceName)
	sub, err := conn.Subscribe(subject, commandHandler(ctx, target, write))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}
	logging.Info("Listening for commands", zap.String("subject", subject))
	return sub, nil
}

func commandHandler(ctx context.Context, target string, write func(ctx context.Context, pkt *protocol.Packet) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		err := handleCommand(ctx, msg.Data, target, write)
		if err != nil {
			logging.Error("Command failed",
				zap.String("subject", msg.Subject),
				zap.Error(err),
			)
		}
		if msg.Reply == "" {
			return
		}

		reply := map[string]string{"status": "sent"}
		if err != nil {
			reply = map[string]string{"error": err.Error()}
		}
		body, _ := json.Marshal(reply)
		if rerr := msg.Respond(body); rerr != nil {
			logging.Warn("Failed to reply to command", zap.Error(rerr))
		}
	}
}

func handleCommand(ctx context.Context, data []byte, target string, write func(ctx context.Context, pkt *protocol.Packet) error) error {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}
	pkt, err := cmd.ToPacket(target)
	if err != nil {
		return err
	}
	return write(ctx, pkt)
}
