package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState represents the session's current protocol phase.
type SessionState int

const (
	StateConnected      SessionState = iota
	StateAwaitingVerify              // forwarded to auth server, waiting for ack
	StateAuthenticated               // at character select
	StateHandedOff                   // ownership moved to a world server
	StateWorldServer                 // peer is a logged-in world server
	StateAuthLink                    // peer is the auth-server link
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateAwaitingVerify:
		return "AwaitingVerify"
	case StateAuthenticated:
		return "Authenticated"
	case StateHandedOff:
		return "HandedOff"
	case StateWorldServer:
		return "WorldServer"
	case StateAuthLink:
		return "AuthLink"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// HandlerFunc is the callback signature for packet handlers.
// The session pointer is passed as an opaque interface to avoid import cycles.
type HandlerFunc func(sess any, r *Reader)

type handlerEntry struct {
	fn            HandlerFunc
	allowedStates map[SessionState]bool
}

// Registry maps opcodes to handlers with state-based access control.
type Registry struct {
	handlers map[uint16]*handlerEntry
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[uint16]*handlerEntry),
		log:      log,
	}
}

// Register maps an opcode to a handler, restricted to the given session states.
func (reg *Registry) Register(opcode uint16, states []SessionState, fn HandlerFunc) {
	allowed := make(map[SessionState]bool, len(states))
	for _, s := range states {
		allowed[s] = true
	}
	reg.handlers[opcode] = &handlerEntry{
		fn:            fn,
		allowedStates: allowed,
	}
}

// Dispatch finds the handler for the frame's opcode, validates the session
// state, and calls the handler. A malformed frame, unknown opcode or
// state-mismatched opcode is an error: binary peers that desynchronize are
// never trusted again, the caller must drop them.
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("short packet (%d bytes)", len(data))
	}
	r := NewReader(data)
	opcode := r.Opcode()
	reg.log.Debug("收到封包",
		zap.String("op", fmt.Sprintf("0x%04X", opcode)),
		zap.Int("size", len(data)),
		zap.String("state", state.String()),
	)

	entry, ok := reg.handlers[opcode]
	if !ok {
		return fmt.Errorf("unknown opcode 0x%04X in state %s", opcode, state)
	}

	if !entry.allowedStates[state] {
		reg.log.Warn("操作碼在此狀態下不允許",
			zap.String("op", fmt.Sprintf("0x%04X", opcode)),
			zap.String("state", state.String()),
		)
		return fmt.Errorf("opcode 0x%04X not allowed in state %s", opcode, state)
	}

	return reg.safeCall(entry.fn, sess, r, opcode)
}

// safeCall executes a handler with panic recovery to prevent a single
// bad packet from crashing the entire tick loop.
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode uint16) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.String("op", fmt.Sprintf("0x%04X", opcode)),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic for opcode 0x%04X: %v", opcode, rec)
		}
	}()
	fn(sess, r)
	return nil
}
