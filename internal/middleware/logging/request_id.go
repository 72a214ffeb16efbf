package loggingmw

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewRequestID returns a ULID so request ids sort by arrival time in logs.
func NewRequestID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err != nil {
		return ulid.Make().String()
	}
	return id.String()
}
