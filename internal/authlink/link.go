// Package authlink maintains the hub's outbound connection to the
// authentication server: dial with backoff, handshake, verify requests and
// presence notices. Inbound traffic flows through the shared session and
// dispatch machinery like every other peer, so the tick loop stays the only
// writer of hub state.
package authlink

import (
	"fmt"
	stdnet "net"
	"sync/atomic"
	"time"

	"github.com/charhub/server/internal/config"
	gonet "github.com/charhub/server/internal/net"
	"github.com/charhub/server/internal/net/packet"
	"go.uber.org/zap"
)

// Link is the auth-server connection manager. All methods except the dial
// goroutine internals are tick-loop only.
type Link struct {
	cfg        config.AuthServerConfig
	serverName string
	srv        *gonet.Server
	log        *zap.Logger

	sess  *gonet.Session
	ready bool // handshake acknowledged

	dialing    atomic.Bool
	sessCh     chan *gonet.Session
	cooldown   int // ticks until the next dial attempt
	retryTicks int
}

func NewLink(cfg config.AuthServerConfig, serverName string, tickRate time.Duration, srv *gonet.Server, log *zap.Logger) *Link {
	retry := int(cfg.ReconnectInterval / tickRate)
	if retry < 1 {
		retry = 1
	}
	return &Link{
		cfg:        cfg,
		serverName: serverName,
		srv:        srv,
		log:        log,
		sessCh:     make(chan *gonet.Session, 1),
		retryTicks: retry,
	}
}

// Session returns the live link session, or nil.
func (l *Link) Session() *gonet.Session {
	return l.sess
}

// Connected reports whether the link session is up (handshake may still be
// in flight).
func (l *Link) Connected() bool {
	return l.sess != nil && !l.sess.IsClosed()
}

// Ready reports whether the auth server acknowledged our handshake.
func (l *Link) Ready() bool {
	return l.Connected() && l.ready
}

// SetReady is called by the link-ack handler.
func (l *Link) SetReady(ok bool) {
	l.ready = ok
}

// Maintain runs once per tick. It adopts a freshly dialed connection (and
// returns it so the loop can register the session), notices a dead link, and
// paces redial attempts. Never blocks.
func (l *Link) Maintain() *gonet.Session {
	select {
	case sess := <-l.sessCh:
		l.sess = sess
		l.ready = false
		l.sendLogin(sess)
		l.log.Info(fmt.Sprintf("帳號伺服器連線建立  session=%d", sess.ID))
		return sess
	default:
	}

	if l.Connected() || l.dialing.Load() {
		return nil
	}
	if l.sess != nil {
		l.sess = nil
		l.ready = false
		l.log.Warn("帳號伺服器連線中斷，等待重連")
		l.cooldown = l.retryTicks
	}
	if l.cooldown > 0 {
		l.cooldown--
		return nil
	}
	l.cooldown = l.retryTicks
	l.dialing.Store(true)
	go l.dial()
	return nil
}

// dial runs in its own goroutine; the result is delivered via sessCh.
func (l *Link) dial() {
	defer l.dialing.Store(false)

	conn, err := stdnet.DialTimeout("tcp", l.cfg.Address, 5*time.Second)
	if err != nil {
		l.log.Warn("帳號伺服器連線失敗", zap.String("addr", l.cfg.Address), zap.Error(err))
		return
	}
	sess := l.srv.Adopt(conn)
	sess.SetState(packet.StateAuthLink)
	l.sessCh <- sess
}

// sendLogin pushes the link handshake with our credentials.
func (l *Link) sendLogin(sess *gonet.Session) {
	w := packet.NewWriter(packet.H_OPCODE_LINK_LOGIN)
	w.WriteS(l.cfg.User, 24)
	w.WriteS(l.cfg.Password, 24)
	w.WriteS(l.serverName, 20)
	sess.Send(w.Bytes())
}

// Send buffers a packet on the link. Returns false when the link is down;
// callers treat that as "destination unavailable", not an error to retry
// synchronously.
func (l *Link) Send(data []byte) bool {
	if !l.Ready() || !l.sess.Writable() {
		return false
	}
	l.sess.Send(data)
	return true
}

// SendVerify forwards a client's credentials for full verification.
func (l *Link) SendVerify(accountID int32, loginID1, loginID2 uint32, ip string, sex byte) bool {
	w := packet.NewWriter(packet.H_OPCODE_VERIFY_REQ)
	w.WriteD(accountID)
	w.WriteDU(loginID1)
	w.WriteDU(loginID2)
	w.WriteC(sex)
	w.WriteS(ip, 16)
	return l.Send(w.Bytes())
}

// SendUserCount reports the cluster-wide active player count.
func (l *Link) SendUserCount(users int32) {
	w := packet.NewWriter(packet.H_OPCODE_USER_COUNT)
	w.WriteD(users)
	l.Send(w.Bytes())
}

// AccountOnline implements presence.Notifier.
func (l *Link) AccountOnline(accountID int32) {
	w := packet.NewWriter(packet.H_OPCODE_SET_ONLINE)
	w.WriteD(accountID)
	l.Send(w.Bytes())
}

// AccountOffline implements presence.Notifier.
func (l *Link) AccountOffline(accountID int32) {
	w := packet.NewWriter(packet.H_OPCODE_SET_OFFLINE)
	w.WriteD(accountID)
	l.Send(w.Bytes())
}
