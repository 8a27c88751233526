package scoreindex

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidCursor marks a cursor the client should not retry: pagination
// restarts from the first page.
var ErrInvalidCursor = errors.New("invalid feed cursor")

// Cursor pins a position in the (score desc, id desc) order. It encodes the
// value of the last returned entry, not a reference to it, so it stays
// resumable even after that entry is deactivated or pruned.
type Cursor struct {
	Score float64
	ID    uuid.UUID

	set bool
}

func (c Cursor) IsZero() bool {
	return !c.set
}

// NewCursor pins a position from raw values; the feed read path uses it to
// continue keyset pagination through the database fallback.
func NewCursor(score float64, id uuid.UUID) Cursor {
	return Cursor{Score: score, ID: id, set: true}
}

// Encode renders the cursor as an opaque token. The zero cursor encodes to
// the empty string, meaning "start from the top".
func (c Cursor) Encode() string {
	if !c.set {
		return ""
	}
	raw := strconv.FormatFloat(c.Score, 'f', -1, 64) + "|" + c.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func DecodeCursor(token string) (Cursor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Cursor{}, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}

	score, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}

	id, err := uuid.Parse(parts[1])
	if err != nil || id == uuid.Nil {
		return Cursor{}, ErrInvalidCursor
	}

	return NewCursor(score, id), nil
}
