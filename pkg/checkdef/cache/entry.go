package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current entry format version.
// Increment when making breaking changes to Entry.
const Version = 1

// Entry is the recorded outcome of the first passing evaluation of a fingerprint.
type Entry struct {
	Version     int    `json:"version"`
	Fingerprint string `json:"fingerprint"`
	Check       string `json:"check"`
	Passed      bool   `json:"passed"`

	// OriginalDuration is the wall time of the run that produced the entry.
	OriginalDuration time.Duration `json:"original_duration_ns"`

	CreatedAt time.Time `json:"created_at"`
	RunID     string    `json:"run_id,omitempty"`
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(fingerprint, checkName string, passed bool, original time.Duration) Entry {
	return Entry{
		Version:          Version,
		Fingerprint:      fingerprint,
		Check:            checkName,
		Passed:           passed,
		OriginalDuration: original,
		CreatedAt:        time.Now().UTC(),
	}
}

// WithRunID sets the run that produced the entry.
func (e Entry) WithRunID(runID string) Entry {
	e.RunID = runID
	return e
}

// Marshal serializes an entry to JSON.
func (e Entry) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserializes an entry from JSON.
func Unmarshal(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if e.Version > Version {
		return nil, fmt.Errorf("decode cache entry: unsupported version %d", e.Version)
	}
	return &e, nil
}

func (e Entry) validate() error {
	if e.Fingerprint == "" {
		return ErrInvalidEntry
	}
	return nil
}
