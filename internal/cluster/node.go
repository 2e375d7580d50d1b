package cluster

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/survarena/server/internal/sim"
)

// Report is the periodic status an instance publishes for matchmakers.
type Report struct {
	Instance string    `json:"instance"`
	Mode     string    `json:"mode"`
	State    string    `json:"state"`
	Alive    int       `json:"alive"`
	Players  int       `json:"players"`
	Sessions int       `json:"sessions"`
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
}

// AllowMessage admits an IP to the instance for TTLSeconds.
type AllowMessage struct {
	IP         string `json:"ip"`
	TTLSeconds int    `json:"ttl_seconds"`
}

const defaultAllowTTL = 60 * time.Second

// Node is one instance's presence on the cluster bus: it publishes
// reports on <prefix>.report and listens for allow-IP messages on
// <prefix>.allow.
type Node struct {
	t        Transport
	prefix   string
	log      *zap.Logger
	interval time.Duration
	now      func() time.Time

	lastAt    time.Time
	lastState string
	unsub     []func()
}

func NewNode(t Transport, prefix string, log *zap.Logger) *Node {
	return &Node{
		t:        t,
		prefix:   prefix,
		log:      log,
		interval: time.Second,
		now:      time.Now,
	}
}

func (n *Node) subject(s string) string { return n.prefix + "." + s }

// PublishReport sends r unless one was sent less than a second ago. A
// change of state is always sent. Reports whether r was published.
// Publishing never blocks the caller on the network.
func (n *Node) PublishReport(r Report) bool {
	now := n.now()
	if r.State == n.lastState && now.Sub(n.lastAt) < n.interval {
		return false
	}
	r.At = now
	data, err := json.Marshal(r)
	if err != nil {
		n.log.Error("encode report", zap.Error(err))
		return false
	}
	if err := n.t.Publish(n.subject("report"), data); err != nil {
		n.log.Warn("publish report", zap.Error(err))
		return false
	}
	n.lastAt = now
	n.lastState = r.State
	return true
}

// SubscribeAllow forwards allow-IP messages to post, usually the inbox of
// an instance. Malformed messages are logged and dropped.
func (n *Node) SubscribeAllow(post func(sim.Message) bool) error {
	unsub, err := n.t.Subscribe(n.subject("allow"), func(data []byte) {
		msg, err := decodeAllow(data)
		if err != nil {
			n.log.Debug("allow message dropped", zap.Error(err))
			return
		}
		post(msg)
	})
	if err != nil {
		return err
	}
	n.unsub = append(n.unsub, unsub)
	return nil
}

func decodeAllow(data []byte) (sim.Message, error) {
	var m AllowMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return sim.Message{}, fmt.Errorf("decode allow: %w", err)
	}
	if net.ParseIP(m.IP) == nil {
		return sim.Message{}, fmt.Errorf("decode allow: bad ip %q", m.IP)
	}
	ttl := time.Duration(m.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = defaultAllowTTL
	}
	return sim.Message{Kind: sim.MsgAllowIP, IP: m.IP, TTL: ttl}, nil
}

// Close drops every subscription and closes the transport.
func (n *Node) Close() {
	for _, u := range n.unsub {
		u()
	}
	n.unsub = nil
	n.t.Close()
}
