// Package auth holds the pending-authentication ledger: a bounded ring of
// recently issued grants used to bridge a client's two connections (to the
// auth server, then to the hub).
package auth

// GrantState tracks how far a grant has been consumed.
type GrantState byte

const (
	AwaitingSelect GrantState = iota // issued, client not yet seen on the hub
	Selected                         // consumed, character chosen
	SlotFree                         // voided
)

// Grant is one ledger slot.
type Grant struct {
	AccountID  int32
	CharID     int32 // 0 until a character is chosen
	LoginID1   uint32
	LoginID2   uint32
	IP         string
	State      GrantState
	Expiration int64 // entitlement deadline, unix seconds, 0 = unlimited
	Sex        byte
}

// Ledger is a fixed-capacity overwrite-on-full ring. Issuing past capacity
// silently overwrites the oldest slot regardless of its consumption state.
// Known limitation, kept on purpose: under a login storm unconsumed grants
// age out and those clients fall back to a full auth-server verification,
// which bounds memory without breaking correctness.
//
// Owned by the tick loop; no internal locking.
type Ledger struct {
	slots []Grant
	pos   int // write cursor
}

// NewLedger creates a ledger with the given fixed capacity.
func NewLedger(capacity int) *Ledger {
	if capacity <= 0 {
		capacity = 256
	}
	return &Ledger{slots: make([]Grant, capacity)}
}

// Capacity returns the fixed slot count.
func (l *Ledger) Capacity() int {
	return len(l.slots)
}

// Issue inserts a grant at the write cursor, advancing and wrapping it.
// Whatever occupied the slot is overwritten. "Ledger full" is not an error.
func (l *Ledger) Issue(accountID int32, loginID1, loginID2 uint32, ip string, sex byte, expiration int64) {
	// Re-issue for an account already awaiting select reuses its slot, so a
	// client that retries the auth server doesn't burn ring capacity.
	idx := -1
	for i := range l.slots {
		if l.slots[i].State == AwaitingSelect && l.slots[i].AccountID == accountID {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = l.pos
		l.pos++
		if l.pos >= len(l.slots) {
			l.pos = 0
		}
	}

	l.slots[idx] = Grant{
		AccountID:  accountID,
		LoginID1:   loginID1,
		LoginID2:   loginID2,
		IP:         ip,
		State:      AwaitingSelect,
		Expiration: expiration,
		Sex:        sex,
	}
}

// Consume scans for a slot matching account id, both tokens and the client
// IP, still in AwaitingSelect. On a hit the slot is advanced to Selected and
// a copy of the grant is returned. The slot is not removed; it ages out via
// overwrite. A miss is not fatal — the caller falls back to a full
// auth-server verification.
func (l *Ledger) Consume(accountID int32, loginID1, loginID2 uint32, ip string) (Grant, bool) {
	for i := range l.slots {
		g := &l.slots[i]
		if g.State != AwaitingSelect {
			continue
		}
		if g.AccountID != accountID || g.LoginID1 != loginID1 || g.LoginID2 != loginID2 {
			continue
		}
		if g.IP != ip {
			continue
		}
		g.State = Selected
		return *g, true
	}
	return Grant{}, false
}

// Void frees every slot held by the account, regardless of state.
func (l *Ledger) Void(accountID int32) {
	for i := range l.slots {
		if l.slots[i].AccountID == accountID {
			l.slots[i].State = SlotFree
		}
	}
}
