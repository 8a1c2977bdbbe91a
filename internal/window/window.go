// Package window computes the next processing window for a pipeline's
// target day. All boundary arithmetic happens in the operating timezone
// before instants are handed on, which is what keeps DST transitions from
// shifting day boundaries.
package window

import (
	"context"
	"fmt"
	"time"

	"driveplane/internal/store"
)

// Store is the slice of the record store the calculator needs.
type Store interface {
	MaxWindowEnd(ctx context.Context, id store.Identity, targetDay time.Time) (*time.Time, error)
}

// Window is one half-open [Start, End) interval within a target day.
type Window struct {
	// TargetDay is midnight of the day being processed, in the operating
	// timezone.
	TargetDay time.Time
	Start     time.Time
	End       time.Time
	// Achieved is End - Start; it differs from the configured granularity
	// when the window was clamped at the day boundary.
	Achieved time.Duration
}

// Calculator derives windows from the current instant and the identity's
// record history.
type Calculator struct {
	store       Store
	tz          *time.Location
	xTimeBack   time.Duration
	granularity time.Duration
	offset      time.Duration
}

// New creates a window calculator. granularity must be positive.
func New(s Store, tz *time.Location, xTimeBack, granularity, offset time.Duration) (*Calculator, error) {
	if granularity <= 0 {
		return nil, fmt.Errorf("window: granularity must be positive, got %v", granularity)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Calculator{
		store:       s,
		tz:          tz,
		xTimeBack:   xTimeBack,
		granularity: granularity,
		offset:      offset,
	}, nil
}

// Next computes the next unprocessed window for the identity's target day.
// It returns nil when the day is fully covered and there is nothing to do.
//
// The start continues from the latest recorded window end; a fresh day
// starts at midnight plus the configured first-window offset. The end is
// clamped at the next midnight.
func (c *Calculator) Next(ctx context.Context, id store.Identity, now time.Time) (*Window, error) {
	local := now.In(c.tz).Add(-c.xTimeBack)
	targetDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.tz)
	dayEnd := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, c.tz)

	maxEnd, err := c.store.MaxWindowEnd(ctx, id, targetDay)
	if err != nil {
		return nil, fmt.Errorf("window: continuation lookup failed: %w", err)
	}

	var start time.Time
	if maxEnd != nil {
		start = maxEnd.In(c.tz)
	} else {
		start = targetDay.Add(c.offset)
	}

	if !start.Before(dayEnd) {
		// Day fully covered.
		return nil, nil
	}

	end := start.Add(c.granularity)
	if end.After(dayEnd) {
		end = dayEnd
	}

	return &Window{
		TargetDay: targetDay,
		Start:     start,
		End:       end,
		Achieved:  end.Sub(start),
	}, nil
}
