package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerConsumeMatch(t *testing.T) {
	l := NewLedger(4)
	l.Issue(100, 11, 22, "10.0.0.1", 1, 0)

	g, ok := l.Consume(100, 11, 22, "10.0.0.1")
	require.True(t, ok)
	assert.Equal(t, int32(100), g.AccountID)
	assert.Equal(t, byte(1), g.Sex)
	assert.Equal(t, Selected, g.State)
}

func TestLedgerConsumeRejectsMismatch(t *testing.T) {
	l := NewLedger(4)
	l.Issue(100, 11, 22, "10.0.0.1", 0, 0)

	_, ok := l.Consume(100, 11, 99, "10.0.0.1")
	assert.False(t, ok, "wrong token must miss")

	_, ok = l.Consume(100, 11, 22, "10.0.0.2")
	assert.False(t, ok, "wrong ip must miss")

	_, ok = l.Consume(101, 11, 22, "10.0.0.1")
	assert.False(t, ok, "wrong account must miss")

	// The real grant is still intact after the misses.
	_, ok = l.Consume(100, 11, 22, "10.0.0.1")
	assert.True(t, ok)
}

func TestLedgerConsumeOnce(t *testing.T) {
	l := NewLedger(4)
	l.Issue(100, 11, 22, "10.0.0.1", 0, 0)

	_, ok := l.Consume(100, 11, 22, "10.0.0.1")
	require.True(t, ok)

	_, ok = l.Consume(100, 11, 22, "10.0.0.1")
	assert.False(t, ok, "a consumed grant must not match again")
}

func TestLedgerOverwritesOldestPastCapacity(t *testing.T) {
	l := NewLedger(3)
	for i := int32(1); i <= 4; i++ {
		l.Issue(i, 10, 20, "10.0.0.1", 0, 0)
	}

	// Account 1 held the slot the cursor wrapped onto.
	_, ok := l.Consume(1, 10, 20, "10.0.0.1")
	assert.False(t, ok, "oldest grant must have been overwritten")

	for i := int32(2); i <= 4; i++ {
		_, ok := l.Consume(i, 10, 20, "10.0.0.1")
		assert.True(t, ok, "grant %d must survive", i)
	}
}

func TestLedgerReissueReusesSlot(t *testing.T) {
	l := NewLedger(2)
	l.Issue(100, 11, 22, "10.0.0.1", 0, 0)
	// Client retried against the auth server, new tokens for same account.
	l.Issue(100, 33, 44, "10.0.0.1", 0, 0)
	l.Issue(200, 55, 66, "10.0.0.2", 0, 0)

	_, ok := l.Consume(100, 11, 22, "10.0.0.1")
	assert.False(t, ok, "old tokens must be gone after re-issue")

	_, ok = l.Consume(100, 33, 44, "10.0.0.1")
	assert.True(t, ok)

	_, ok = l.Consume(200, 55, 66, "10.0.0.2")
	assert.True(t, ok, "re-issue must not burn a second slot")
}

func TestLedgerVoid(t *testing.T) {
	l := NewLedger(4)
	l.Issue(100, 11, 22, "10.0.0.1", 0, 0)
	l.Void(100)

	_, ok := l.Consume(100, 11, 22, "10.0.0.1")
	assert.False(t, ok)
}
