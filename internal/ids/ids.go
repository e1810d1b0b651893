// Package ids generates identifiers for records created while the remote
// service is unreachable. They carry a reserved prefix so they can never
// collide with ids assigned by the server.
package ids

import (
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// LocalPrefix marks ids minted on this device.
const LocalPrefix = "local-"

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewLocal returns a sortable, prefixed id for a locally-originated record.
func NewLocal() string {
	return NewLocalAt(time.Now())
}

// NewLocalAt is NewLocal with an explicit timestamp.
func NewLocalAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return LocalPrefix + ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// IsLocal reports whether id was minted by NewLocal.
func IsLocal(id string) bool {
	return strings.HasPrefix(id, LocalPrefix)
}
