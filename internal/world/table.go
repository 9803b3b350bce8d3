// Package world tracks the world servers connected to the hub: identity,
// public address, load, and the set of zones each one hosts.
package world

import (
	"errors"

	gonet "github.com/charhub/server/internal/net"
	"go.uber.org/zap"
)

// ErrTableFull is returned when every world-server slot is taken.
var ErrTableFull = errors.New("world-server table full")

// Record is one connected world server. Created when the server completes
// its login handshake, destroyed on disconnect.
type Record struct {
	Index   int32
	Session *gonet.Session
	Name    string
	IP      string // public address handed to clients
	Port    uint16
	Users   int32 // active player count, self-reported
	Zones   map[uint16]struct{}
}

// HostsZone reports whether the server announced the zone.
func (rec *Record) HostsZone(zone uint16) bool {
	_, ok := rec.Zones[zone]
	return ok
}

// Table holds the fixed world-server slots. Owned by the tick loop.
type Table struct {
	servers []*Record
	log     *zap.Logger
}

func NewTable(maxServers int, log *zap.Logger) *Table {
	if maxServers <= 0 {
		maxServers = 4
	}
	return &Table{
		servers: make([]*Record, maxServers),
		log:     log,
	}
}

// Register claims the first free slot for a freshly handshaken world server.
func (t *Table) Register(sess *gonet.Session, name, ip string, port uint16) (*Record, error) {
	for i := range t.servers {
		if t.servers[i] != nil {
			continue
		}
		rec := &Record{
			Index:   int32(i),
			Session: sess,
			Name:    name,
			IP:      ip,
			Port:    port,
			Zones:   make(map[uint16]struct{}),
		}
		t.servers[i] = rec
		return rec, nil
	}
	return nil, ErrTableFull
}

// Remove frees the slot and returns the removed record, or nil.
func (t *Table) Remove(index int32) *Record {
	if index < 0 || int(index) >= len(t.servers) {
		return nil
	}
	rec := t.servers[index]
	t.servers[index] = nil
	return rec
}

// Get returns the record at index if that slot is live, else nil.
func (t *Table) Get(index int32) *Record {
	if index < 0 || int(index) >= len(t.servers) {
		return nil
	}
	return t.servers[index]
}

// ByZone returns the first live world server hosting the zone, or nil.
func (t *Table) ByZone(zone uint16) *Record {
	for _, rec := range t.servers {
		if rec != nil && rec.HostsZone(zone) {
			return rec
		}
	}
	return nil
}

// ByAddress locates a world server by its announced public address.
func (t *Table) ByAddress(ip string, port uint16) *Record {
	for _, rec := range t.servers {
		if rec != nil && rec.IP == ip && rec.Port == port {
			return rec
		}
	}
	return nil
}

// Live returns every connected world server in slot order.
func (t *Table) Live() []*Record {
	out := make([]*Record, 0, len(t.servers))
	for _, rec := range t.servers {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// TotalUsers sums the self-reported player counts.
func (t *Table) TotalUsers() int32 {
	var total int32
	for _, rec := range t.servers {
		if rec != nil {
			total += rec.Users
		}
	}
	return total
}

// Broadcast buffers a packet to every live world server.
func (t *Table) Broadcast(data []byte) {
	for _, rec := range t.servers {
		if rec != nil {
			rec.Session.Send(data)
		}
	}
}

// BroadcastExcept buffers a packet to every live world server but one.
// Used to tell the survivors that a peer's zones are gone.
func (t *Table) BroadcastExcept(index int32, data []byte) {
	for _, rec := range t.servers {
		if rec != nil && rec.Index != index {
			rec.Session.Send(data)
		}
	}
}
