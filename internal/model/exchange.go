// internal/model/exchange.go
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"
)

// Direction tells whether a record is the outgoing or the incoming half of an exchange
type Direction string

const (
	Request  Direction = "req"
	Response Direction = "resp"
)

func (d Direction) String() string {
	switch d {
	case Request:
		return "request"
	case Response:
		return "response"
	default:
		return "unknown"
	}
}

// ExchangeRecord represents one logged request or response event
type ExchangeRecord struct {
	ID          string // backend id, direction-qualified
	Timestamp   string
	Direction   Direction
	Channel     string // poller id or endpoint
	Payload     string
	ContentType string
	Note        string
	Status      string // "OK" or an error code from the poller

	// RenderKey is a synthetic key for records the backend didn't identify
	RenderKey string
	// Local marks records appended by the dashboard itself
	Local bool
}

const (
	backendKeyPrefix = "id:"
	tupleKeyPrefix   = "tx:"
)

// IdentityKey returns the dedup key for a record. Records sharing a key are the
// same logical event.
func IdentityKey(r ExchangeRecord) string {
	if r.ID != "" {
		return backendKeyPrefix + r.ID
	}

	// Fields are separated by a byte that can't appear in any of them
	var b strings.Builder
	b.Grow(len(r.Timestamp) + len(r.Channel) + len(r.Note) + len(r.Payload) + 8)
	b.WriteString(r.Timestamp)
	b.WriteByte(0)
	b.WriteString(string(r.Direction))
	b.WriteByte(0)
	b.WriteString(r.Channel)
	b.WriteByte(0)
	b.WriteString(r.Note)
	b.WriteByte(0)
	b.WriteString(r.Payload)

	sum := xxh3.HashString128(b.String())
	return fmt.Sprintf("%s%016x%016x", tupleKeyPrefix, sum.Hi, sum.Lo)
}

// TimestampLayout is how the backend formats exchange timestamps
const TimestampLayout = "2006-01-02 15:04:05"

// CompareTimestamps orders two backend timestamps. Numeric timestamps compare as
// numbers, everything else compares as text.
func CompareTimestamps(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}
