// Package opcmd is the operator command seam: the TUI and CLI surfaces
// (external to the core) issue alarm acknowledge/clear requests over the
// bus, and this service applies them to the alarm history and replies
// with the success/error pair every operator action carries (§7
// "User-visible failures").
package opcmd

import (
	"context"

	"github.com/watertreat/rtu/alarms"
	"github.com/watertreat/rtu/bus"
	"github.com/watertreat/rtu/errcode"
	"github.com/watertreat/rtu/logx"
)

// Command topics. Payload is a map: instance_id (number), user (string)
// for ack; instance_id or rule_id for clear.
var (
	topicAck   = bus.Topic{"alarm", "cmd", "ack"}
	topicClear = bus.Topic{"alarm", "cmd", "clear"}
)

// Reply is the success/error pair returned for every command.
type Reply struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Service applies operator commands to the alarm history.
type Service struct {
	log  *logx.Logger
	hist *alarms.History
}

// New builds the command seam over hist.
func New(log *logx.Logger, hist *alarms.History) *Service {
	return &Service{log: log, hist: hist}
}

// Start subscribes to the command topics and launches the command loop;
// requests published after Start returns are answered.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) {
	ackSub := conn.Subscribe(topicAck)
	clearSub := conn.Subscribe(topicClear)
	go s.loop(ctx, conn, ackSub, clearSub)
}

func (s *Service) loop(ctx context.Context, conn *bus.Connection, ackSub, clearSub *bus.Subscription) {
	defer conn.Unsubscribe(ackSub)
	defer conn.Unsubscribe(clearSub)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ackSub.Channel():
			conn.Reply(msg, s.ack(msg.Payload), false)
		case msg := <-clearSub.Channel():
			conn.Reply(msg, s.clear(msg.Payload), false)
		}
	}
}

func (s *Service) ack(payload any) Reply {
	m, ok := payload.(map[string]any)
	if !ok {
		return errReply(errcode.InvalidParam, "ack: payload must be an object")
	}
	id, ok := numField(m, "instance_id")
	if !ok {
		return errReply(errcode.InvalidParam, "ack: missing instance_id")
	}
	user, _ := m["user"].(string)
	if user == "" {
		user = "operator"
	}
	if err := s.hist.Acknowledge(id, user); err != nil {
		s.log.Warning().Err(err).Int64("instance", id).Log("acknowledge rejected")
		return errReply(errcode.Of(err), err.Error())
	}
	return Reply{OK: true, Code: string(errcode.OK), Message: "acknowledged"}
}

func (s *Service) clear(payload any) Reply {
	m, ok := payload.(map[string]any)
	if !ok {
		return errReply(errcode.InvalidParam, "clear: payload must be an object")
	}
	if id, ok := numField(m, "instance_id"); ok {
		if err := s.hist.Clear(id); err != nil {
			return errReply(errcode.Of(err), err.Error())
		}
		return Reply{OK: true, Code: string(errcode.OK), Message: "cleared"}
	}
	if id, ok := numField(m, "rule_id"); ok {
		s.hist.ClearRule(id)
		return Reply{OK: true, Code: string(errcode.OK), Message: "cleared"}
	}
	return errReply(errcode.InvalidParam, "clear: missing instance_id or rule_id")
}

func errReply(code errcode.Code, msg string) Reply {
	return Reply{OK: false, Code: string(code), Message: msg}
}

// numField reads an int64 out of the loosely-typed payload map, accepting
// the float64 JSON decoding produces and native ints from in-process
// publishers.
func numField(m map[string]any, key string) (int64, bool) {
	switch v := m[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
