// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for run-fatal input problems.
var (
	ErrInvalidPlayerID = errors.New("invalid player id")
	ErrInvalidClass    = errors.New("invalid class")
)

// PlayerID identifies a player on the remote service.
type PlayerID uint64

// ParsePlayerID accepts a positive decimal integer, surrounding spaces allowed.
func ParsePlayerID(s string) (PlayerID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidPlayerID)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("%w: %q is not numeric", ErrInvalidPlayerID, s)
		}
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidPlayerID, s, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", ErrInvalidPlayerID)
	}
	return PlayerID(id), nil
}

func (p PlayerID) String() string { return strconv.FormatUint(uint64(p), 10) }

// Class is a discipline whose times are tracked separately.
type Class int

// Supported classes. Values match the remote service class ids.
const (
	ClassSoldier Class = 3
	ClassDemoman Class = 4
)

// ParseClass accepts a class name or the menu choice "1"/"2".
func ParseClass(s string) (Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "soldier":
		return ClassSoldier, nil
	case "2", "demoman", "demo":
		return ClassDemoman, nil
	default:
		return 0, fmt.Errorf("%w: %q (want soldier or demoman)", ErrInvalidClass, s)
	}
}

// ID returns the remote service class id.
func (c Class) ID() int { return int(c) }

func (c Class) String() string {
	switch c {
	case ClassSoldier:
		return "soldier"
	case ClassDemoman:
		return "demoman"
	default:
		return "class(" + strconv.Itoa(int(c)) + ")"
	}
}

// Label is the capitalized display name.
func (c Class) Label() string {
	switch c {
	case ClassSoldier:
		return "Soldier"
	case ClassDemoman:
		return "Demoman"
	default:
		return c.String()
	}
}

// MapEntry is one catalog row. Name is the identity.
type MapEntry struct {
	Name    string
	ID      int64  // remote map id; 0 when the catalog does not carry it
	Tier    int    // difficulty tier for the catalog's class
	MapRank string // map-level rating, copied verbatim
}

// FailureReason explains why a map has no record row.
type FailureReason string

// Failure reasons.
const (
	ReasonNoRecord         FailureReason = "no_record"
	ReasonExhaustedRetries FailureReason = "exhausted_retries"
	ReasonRejected         FailureReason = "rejected"
	ReasonCanceled         FailureReason = "canceled"
)

// FailureReasons lists every reason in a fixed order.
func FailureReasons() []FailureReason {
	return []FailureReason{ReasonNoRecord, ReasonExhaustedRetries, ReasonRejected, ReasonCanceled}
}

// Outcome is the result of fetching one map. It is either Success or Failure.
type Outcome interface {
	// AttemptCount reports how many remote calls were made for the map.
	AttemptCount() int
	isOutcome()
}

// Success carries the player's personal record on a map.
type Success struct {
	Time     float64 // seconds
	Rank     int
	Attempts int
}

// Failure carries the reason no record could be retrieved.
type Failure struct {
	Reason   FailureReason
	Err      error
	Attempts int
}

func (s Success) AttemptCount() int { return s.Attempts }
func (f Failure) AttemptCount() int { return f.Attempts }

func (Success) isOutcome() {}
func (Failure) isOutcome() {}

func (f Failure) Error() string {
	if f.Err == nil {
		return string(f.Reason)
	}
	return string(f.Reason) + ": " + f.Err.Error()
}

// ReportRow is one line of the records table.
type ReportRow struct {
	MapName string
	Tier    int
	MapRank string
	Time    float64
	Rank    int
}

// FailedMapRow is one line of the failed-maps table.
type FailedMapRow struct {
	MapName string
	Tier    int
	MapRank string
	Reason  FailureReason
}

// RunResult holds both tables of a run in catalog order.
type RunResult struct {
	RunID      string
	PlayerID   PlayerID
	Class      Class
	Records    []ReportRow
	Failed     []FailedMapRow
	StartedAt  time.Time
	FinishedAt time.Time
}

// Total is the number of maps covered by the result.
func (r *RunResult) Total() int { return len(r.Records) + len(r.Failed) }

// FailuresByReason counts failed rows per reason.
func (r *RunResult) FailuresByReason() map[FailureReason]int {
	out := make(map[FailureReason]int)
	for _, f := range r.Failed {
		out[f.Reason]++
	}
	return out
}
