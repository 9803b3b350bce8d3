package net

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charhub/server/internal/net/packet"
	"go.uber.org/zap"
)

// Session represents a single peer connection (game client, world server, or
// the outbound auth-server link). Network I/O runs in dedicated goroutines;
// hub state is accessed only from the tick loop.
type Session struct {
	ID   uint64
	conn net.Conn

	state atomic.Int32 // packet.SessionState stored as int32
	mu    sync.Mutex   // protects conn writes

	InQueue  chan []byte // tick loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	// Hub-side client context, valid once authenticated. Destroyed with the
	// session on close or hand-off.
	AccountID  int32
	LoginID1   uint32
	LoginID2   uint32
	Sex        byte
	Email      string
	Expiration int64   // entitlement deadline, unix seconds, 0 = unlimited
	CharSlots  []int32 // char id per slot, filled by the char-list handler

	// World-server context, valid once the session completed the world-server
	// handshake. -1 for every other peer kind.
	WorldIndex int32

	outBuf [][]byte // buffered packets, flushed by the tick loop

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second packet rate limiter (readLoop goroutine only, no lock needed)
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	writeTimeout time.Duration

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, inSize, outSize, pktPerSec int, writeTimeout time.Duration, log *zap.Logger) *Session {
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, inSize),
		OutQueue:     make(chan []byte, outSize),
		IP:           hostOnly(conn.RemoteAddr().String()),
		WorldIndex:   -1,
		closeCh:      make(chan struct{}),
		pktPerSec:    pktPerSec,
		writeTimeout: writeTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateConnected))
	return s
}

func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines. The hub protocol has no
// handshake packet from our side; the peer speaks first.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. Nothing reaches TCP until FlushOutput is
// called by the tick loop, so handlers never block on a slow peer.
// Called only from the tick loop goroutine — no lock needed on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// Writable reports whether the session can still accept outbound packets.
// A push to an unwritable destination must be treated as "destination
// unavailable" by the caller, never as a blocking wait.
func (s *Session) Writable() bool {
	return !s.closed.Load() && len(s.OutQueue) < cap(s.OutQueue)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop
// goroutine. Non-blocking: if OutQueue is full the session is disconnected
// (backpressure against peers that stop reading).
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Close gracefully shuts down the session.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the TCP connection
// and pushes them onto InQueue for the tick loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		payload, err := ReadFrame(s.conn)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		// Per-second packet rate limiter
		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Block until InQueue has space or session closes. The readLoop
		// goroutine is per-session, so this only stalls this one peer.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads packets from OutQueue and
// writes them as framed data to the TCP connection.
func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

// writeOnePacket writes a single framed packet to the TCP socket.
func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) >= 2 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%04X", binary.LittleEndian.Uint16(data))),
			zap.Int("len", len(data)),
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
