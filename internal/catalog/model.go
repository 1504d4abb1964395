// Package catalog persists the recording history in an embedded SQLite
// database next to the recordings themselves.
package catalog

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// ULID is a lexicographically sortable recording id, stored as text.
type ULID ulid.ULID

// NewULID generates a new id.
func NewULID() ULID {
	return ULID(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader))
}

// ParseULID parses the canonical 26-character form.
func ParseULID(s string) (ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, fmt.Errorf("invalid recording id: %w", err)
	}
	return ULID(id), nil
}

func (u ULID) String() string { return ulid.ULID(u).String() }

// IsZero reports whether the id is unset.
func (u ULID) IsZero() bool { return u == ULID{} }

// Value implements driver.Valuer.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// Scan implements sql.Scanner.
func (u *ULID) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case nil:
		*u = ULID{}
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported ULID column type %T", value)
	}
	if s == "" {
		*u = ULID{}
		return nil
	}
	id, err := ulid.Parse(s)
	if err != nil {
		return fmt.Errorf("scanning recording id: %w", err)
	}
	*u = ULID(id)
	return nil
}

// MarshalJSON renders the id as a string.
func (u ULID) MarshalJSON() ([]byte, error) {
	if u.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON accepts the canonical string form or null.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*u = ULID{}
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid recording id JSON: %s", data)
	}
	id, err := ParseULID(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*u = id
	return nil
}

// GormDataType stores ids as fixed-width text.
func (ULID) GormDataType() string { return "varchar(26)" }

// Status of a catalogued recording.
type Status string

const (
	// StatusActive marks a recording still being written.
	StatusActive Status = "active"
	// StatusComplete marks a recording whose encoder finalized cleanly.
	StatusComplete Status = "complete"
	// StatusFailed marks a recording whose encoder exited abnormally or
	// that was interrupted without finalizing.
	StatusFailed Status = "failed"
)

// Recording is one catalogued capture session.
type Recording struct {
	ID        ULID      `gorm:"primarykey;type:varchar(26)" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Path      string     `gorm:"not null;size:512" json:"path"`
	Status    Status     `gorm:"not null;default:'active';size:16;index" json:"status"`
	StartedAt time.Time  `gorm:"not null;index" json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	SizeBytes int64      `json:"size_bytes"`

	// Human-readable descriptions of the negotiated formats, for the API
	// and for debugging what a given file actually contains.
	VideoFormat string `gorm:"size:64" json:"video_format,omitempty"`
	AudioFormat string `gorm:"size:64" json:"audio_format,omitempty"`

	// Error holds the failure reason for StatusFailed recordings.
	Error string `gorm:"size:512" json:"error,omitempty"`
}

// BeforeCreate assigns an id when none is set.
func (r *Recording) BeforeCreate(*gorm.DB) error {
	if r.ID.IsZero() {
		r.ID = NewULID()
	}
	return nil
}
