package net

// SessionStore holds the live sessions plus an index from account id to the
// hub-side client session owning it. Accessed only from the tick loop.
type SessionStore struct {
	sessions  map[uint64]*Session
	byAccount map[int32]*Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:  make(map[uint64]*Session),
		byAccount: make(map[int32]*Session),
	}
}

func (st *SessionStore) Add(sess *Session) {
	st.sessions[sess.ID] = sess
}

func (st *SessionStore) Remove(id uint64) {
	sess, ok := st.sessions[id]
	if !ok {
		return
	}
	if sess.AccountID != 0 && st.byAccount[sess.AccountID] == sess {
		delete(st.byAccount, sess.AccountID)
	}
	delete(st.sessions, id)
}

func (st *SessionStore) Get(id uint64) *Session {
	return st.sessions[id]
}

// BindAccount records sess as the client connection owning accountID.
// Returns the previous owner if another live session held the account.
func (st *SessionStore) BindAccount(accountID int32, sess *Session) *Session {
	prev := st.byAccount[accountID]
	st.byAccount[accountID] = sess
	if prev == sess {
		return nil
	}
	return prev
}

func (st *SessionStore) ByAccount(accountID int32) *Session {
	return st.byAccount[accountID]
}

func (st *SessionStore) Raw() map[uint64]*Session {
	return st.sessions
}

func (st *SessionStore) ForEach(fn func(*Session)) {
	for _, sess := range st.sessions {
		fn(sess)
	}
}

func (st *SessionStore) Count() int {
	return len(st.sessions)
}
