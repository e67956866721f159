package mediaid

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lowercase ULID. IDs generated by one process sort by
// creation time and never repeat.
func New() string {
	return NewAt(time.Now())
}

func NewAt(t time.Time) string {
	mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	mu.Unlock()
	return strings.ToLower(id.String())
}

// IsValid reports whether value parses as a ULID.
func IsValid(value string) bool {
	_, err := Parse(value)
	return err == nil
}

func Parse(value string) (ulid.ULID, error) {
	return ulid.ParseStrict(strings.ToUpper(strings.TrimSpace(value)))
}

// Time returns the creation timestamp embedded in a media id.
func Time(value string) (time.Time, error) {
	id, err := Parse(value)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
