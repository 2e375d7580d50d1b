package sim

import (
	"time"

	"go.uber.org/zap"
)

// MessageKind tags a cross-goroutine message for an instance.
type MessageKind uint8

const (
	MsgAllowIP MessageKind = iota + 1
	MsgShutdown
)

// Message is an asynchronous request from outside the tick goroutine.
// Messages are applied at the start of the next tick, never mid-tick.
type Message struct {
	Kind MessageKind
	IP   string
	TTL  time.Duration
}

// MessageHandlers are the side effects of inbox messages that live outside
// the instance, such as the network allow list.
type MessageHandlers struct {
	AllowIP func(ip string, ttl time.Duration)
}

func (i *Instance) SetMessageHandlers(h MessageHandlers) { i.handlers = h }

// Post enqueues m without blocking. Safe from any goroutine. Reports false
// when the inbox is full and the message was dropped.
func (i *Instance) Post(m Message) bool {
	select {
	case i.inbox <- m:
		return true
	default:
		i.Log.Warn("instance inbox full, message dropped", zap.Uint8("kind", uint8(m.Kind)))
		return false
	}
}

func (i *Instance) drainInbox() {
	for {
		select {
		case m := <-i.inbox:
			i.apply(m)
		default:
			return
		}
	}
}

func (i *Instance) apply(m Message) {
	switch m.Kind {
	case MsgAllowIP:
		if i.handlers.AllowIP != nil {
			i.handlers.AllowIP(m.IP, m.TTL)
		}
	case MsgShutdown:
		i.Log.Info("shutdown requested")
		i.BeginEnding(0)
	default:
		i.Log.Debug("unknown instance message", zap.Uint8("kind", uint8(m.Kind)))
	}
}
