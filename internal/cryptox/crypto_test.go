package cryptox

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_Deterministic(t *testing.T) {
	password := []byte("secret-password")
	salt := []byte("fixed-salt")

	key1 := DeriveKey(password, salt)
	key2 := DeriveKey(password, salt)

	assert.Equal(t, key1, key2)
	assert.Len(t, key1, 32)
	assert.NotEqual(t, key1, DeriveKey(password, []byte("other-salt")))
}

func TestCheckPassword(t *testing.T) {
	salt, err := RandBytes(SaltSize)
	require.NoError(t, err)

	verifier := MakeVerifier([]byte("correct horse"), salt)
	require.Len(t, verifier, 32)

	tests := []struct {
		name     string
		password string
		salt     []byte
		want     bool
	}{
		{"matching password", "correct horse", salt, true},
		{"wrong password", "battery staple", salt, false},
		{"wrong salt", "correct horse", []byte("another salt"), false},
		{"empty password", "", salt, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckPassword([]byte(tt.password), tt.salt, verifier))
		})
	}
}

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)
	_, err = hex.DecodeString(s)
	assert.NoError(t, err)

	other, err := MakeRandHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)

	empty, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWipeByteArray(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5}
	WipeByteArray(buf)
	assert.Equal(t, []byte{0, 0, 0, 0, 0}, buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}
