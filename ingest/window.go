package ingest

import "time"

// ResolveWindow computes the effective [start, end] filter for an import:
// explicit overrides win over the session bounds. Returns ErrInvalidWindow
// when the resolved start lands after the resolved end.
func ResolveWindow(sessionStart, sessionEnd time.Time, overrideStart, overrideEnd *time.Time) (start, end time.Time, err error) {
	start = sessionStart
	if overrideStart != nil {
		start = *overrideStart
	}
	end = sessionEnd
	if overrideEnd != nil {
		end = *overrideEnd
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, ErrInvalidWindow
	}
	return start, end, nil
}

// TrailingWindow computes the trailing interval ending at reference (clipped
// to ceiling) and reaching back at most `trailing`, never before floor.
// The result always satisfies floor <= start <= end. Degenerate inputs clip
// rather than error: a reference before floor yields the empty window
// [floor, floor].
func TrailingWindow(reference time.Time, trailing time.Duration, floor, ceiling time.Time) (start, end time.Time) {
	end = reference
	if end.After(ceiling) {
		end = ceiling
	}
	if end.Before(floor) {
		end = floor
	}
	start = end.Add(-trailing)
	if start.Before(floor) {
		start = floor
	}
	return start, end
}
