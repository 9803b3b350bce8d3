package component

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateBlobRoundTrip(t *testing.T) {
	cs := &CharacterState{
		CharID:    42,
		AccountID: 100,
		Slot:      3,
		Name:      "劍士阿宅",
		Class:     2,
		Sex:       1,
		Level:     17,
		Exp:       123456789,
		HP:        120,
		MaxHP:     150,
		MP:        44,
		MaxMP:     60,
		Str:       14,
		Dex:       12,
		Con:       11,
		Intel:     8,
		Wis:       9,
		Cha:       10,
		ZoneID:    4,
		X:         -12,
		Y:         3044,
	}

	blob, err := EncodeState(cs)
	require.NoError(t, err)

	got, err := DecodeState(blob)
	require.NoError(t, err)
	assert.Equal(t, cs, got)
}

func TestDecodeStateRejectsGarbage(t *testing.T) {
	_, err := DecodeState([]byte{0xFF, 0x00, 0x13})
	assert.Error(t, err)
}
