package generic

// =============================================================================
// PERIOD - The boundary a coverage ledger is measured over
// =============================================================================

// DefaultPeriodDays is the length of a membership coverage period.
const DefaultPeriodDays = 365

// Period is a half-open calendar range [Start, End).
// A coverage period that starts on 2025-03-01 ends on 2026-03-01 and the
// next period starts on that same day.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// PeriodStarting returns the default-length period beginning at start.
func PeriodStarting(start TimePoint) Period {
	return Period{Start: start, End: start.AddDays(DefaultPeriodDays)}
}

// Contains returns true if the day falls within [Start, End).
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.Before(p.End)
}

// Ended reports whether asOf is at or past the period end.
func (p Period) Ended(asOf TimePoint) bool {
	return asOf.AfterOrEqual(p.End)
}

// Days is the period length in calendar days.
func (p Period) Days() int {
	return DaysBetween(p.Start, p.End)
}

// NextPeriod returns the contiguous period of the same length.
func (p Period) NextPeriod() Period {
	return Period{Start: p.End, End: p.End.AddDays(p.Days())}
}

// Validate rejects periods whose end is not after their start.
func (p Period) Validate() error {
	if !p.End.After(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + ")"
}
