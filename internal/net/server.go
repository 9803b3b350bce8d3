package net

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Server accepts TCP connections and creates Sessions. Clients and world
// servers share one listening port; the first opcode decides the peer kind.
// New/dead sessions are communicated to the tick loop via channels.
type Server struct {
	listener     net.Listener
	nextID       atomic.Uint64
	newConns     chan *Session
	deadCh       chan uint64 // session IDs of dead sessions
	inSize       int
	outSize      int
	pktPerSec    int
	writeTimeout time.Duration
	log          *zap.Logger
	closeCh      chan struct{}
}

func NewServer(bindAddr string, inSize, outSize, pktPerSec int, writeTimeout time.Duration, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener:     ln,
		newConns:     make(chan *Session, 64),
		deadCh:       make(chan uint64, 64),
		inSize:       inSize,
		outSize:      outSize,
		pktPerSec:    pktPerSec,
		writeTimeout: writeTimeout,
		log:          log,
		closeCh:      make(chan struct{}),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions, and pushes them onto the newConns channel.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // server shutting down
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}

		sess := s.Adopt(conn)
		s.log.Info(fmt.Sprintf("對端連線  session=%d  ip=%s", sess.ID, sess.IP))

		select {
		case s.newConns <- sess:
		default:
			s.log.Warn("連線佇列已滿，拒絕新連線")
			sess.Close()
		}
	}
}

// Adopt wraps an already-established connection (e.g. the outbound
// auth-server link) in a Session and starts its I/O goroutines.
func (s *Server) Adopt(conn net.Conn) *Session {
	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.inSize, s.outSize, s.pktPerSec, s.writeTimeout, s.log)
	sess.Start()
	return sess
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead reports a dead session ID to the tick loop.
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
