// Package scheduler decides whether a candidate reservation window collides
// with existing reservations or administrative blocks.
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// ConflictType describes what a candidate window collided with.
type ConflictType string

const (
	// ConflictTypeBlock indicates an administrative block covers the window.
	ConflictTypeBlock ConflictType = "block"
	// ConflictTypeReservation indicates a confirmed reservation occupies the room.
	ConflictTypeReservation ConflictType = "reservation"
	// ConflictTypeSelf indicates two windows of the same request overlap each other.
	ConflictTypeSelf ConflictType = "self"
)

// Conflict details the first collision found for a candidate window.
type Conflict struct {
	Type      ConflictType
	WithID    string
	RoomID    string
	Start     time.Time
	End       time.Time
	WithStart time.Time
	WithEnd   time.Time
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s %s overlaps %s..%s", c.Type, c.WithID, c.Start.Format(time.RFC3339), c.End.Format(time.RFC3339))
}

// Interval is a half-open time range.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// OverlapQuerier looks up collisions in storage. Implementations are expected
// to run inside the transaction that will later write the candidate.
type OverlapQuerier interface {
	// FirstOverlappingBlock returns a block for roomID or the whole facility
	// intersecting [start, end), or ok=false.
	FirstOverlappingBlock(ctx context.Context, roomID string, start, end time.Time) (Interval, bool, error)
	// FirstOverlappingReservation returns a confirmed reservation of roomID
	// intersecting [start, end) other than excludeID, or ok=false.
	FirstOverlappingReservation(ctx context.Context, roomID string, start, end time.Time, excludeID string) (Interval, bool, error)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Checker runs the conflict algorithm against an OverlapQuerier.
type Checker struct{}

// NewChecker constructs a Checker.
func NewChecker() *Checker {
	return &Checker{}
}

// HasConflict reports whether the window collides with a block or another
// confirmed reservation of the room.
func (c *Checker) HasConflict(ctx context.Context, q OverlapQuerier, roomID string, start, end time.Time, excludeID string) (bool, error) {
	conflict, err := c.FindConflict(ctx, q, roomID, start, end, excludeID)
	if err != nil {
		return false, err
	}
	return conflict != nil, nil
}

// FindConflict returns the first collision for the window, checking blocks
// before reservations, or nil when the window is free.
func (c *Checker) FindConflict(ctx context.Context, q OverlapQuerier, roomID string, start, end time.Time, excludeID string) (*Conflict, error) {
	block, ok, err := q.FirstOverlappingBlock(ctx, roomID, start, end)
	if err != nil {
		return nil, fmt.Errorf("scheduler: check blocks: %w", err)
	}
	if ok {
		return &Conflict{
			Type:      ConflictTypeBlock,
			WithID:    block.ID,
			RoomID:    roomID,
			Start:     start,
			End:       end,
			WithStart: block.Start,
			WithEnd:   block.End,
		}, nil
	}

	existing, ok, err := q.FirstOverlappingReservation(ctx, roomID, start, end, excludeID)
	if err != nil {
		return nil, fmt.Errorf("scheduler: check reservations: %w", err)
	}
	if ok {
		return &Conflict{
			Type:      ConflictTypeReservation,
			WithID:    existing.ID,
			RoomID:    roomID,
			Start:     start,
			End:       end,
			WithStart: existing.Start,
			WithEnd:   existing.End,
		}, nil
	}
	return nil, nil
}

// DetectWithin reports the first pair of candidate windows that overlap each
// other, or nil.
func DetectWithin(windows []Interval) *Conflict {
	for i := 0; i < len(windows); i++ {
		for j := i + 1; j < len(windows); j++ {
			if Overlaps(windows[i].Start, windows[i].End, windows[j].Start, windows[j].End) {
				return &Conflict{
					Type:      ConflictTypeSelf,
					WithID:    windows[i].ID,
					Start:     windows[j].Start,
					End:       windows[j].End,
					WithStart: windows[i].Start,
					WithEnd:   windows[i].End,
				}
			}
		}
	}
	return nil
}
