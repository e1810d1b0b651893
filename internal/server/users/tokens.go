package users

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/dmitrijs2005/studyctl/internal/cryptox"
)

type tokenKind int

const (
	kindRefresh tokenKind = iota
	kindReset
	kindVerify
)

type opaqueToken struct {
	kind    tokenKind
	userID  string
	expires time.Time
}

// tokenStore holds single-use opaque tokens. Only their SHA-256 is kept.
type tokenStore struct {
	mu     sync.Mutex
	tokens map[string]opaqueToken
}

func newTokenStore() *tokenStore {
	return &tokenStore{tokens: make(map[string]opaqueToken)}
}

func (ts *tokenStore) issue(kind tokenKind, userID string, expires time.Time) (string, error) {
	raw, err := cryptox.MakeRandHexString(32)
	if err != nil {
		return "", err
	}

	ts.mu.Lock()
	ts.tokens[hashToken(raw)] = opaqueToken{kind: kind, userID: userID, expires: expires}
	ts.mu.Unlock()
	return raw, nil
}

// consume spends raw and returns its user. Expired tokens are removed and
// rejected.
func (ts *tokenStore) consume(kind tokenKind, raw string, now time.Time) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	key := hashToken(raw)
	t, ok := ts.tokens[key]
	if !ok || t.kind != kind {
		return "", ErrInvalidToken
	}
	delete(ts.tokens, key)
	if !now.Before(t.expires) {
		return "", ErrInvalidToken
	}
	return t.userID, nil
}

func (ts *tokenStore) revokeUser(kind tokenKind, userID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for k, t := range ts.tokens {
		if t.kind == kind && t.userID == userID {
			delete(ts.tokens, k)
		}
	}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
