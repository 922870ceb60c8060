package cryptotax

import "time"

// Timestamp is a unix timestamp in seconds.
//
// Actions at second resolution do not fit a day-level date type, so the
// whole engine orders and compares plain unix seconds.
type Timestamp int64

// YearInSeconds is the default tax-free holding period.
const YearInSeconds = 31536000 // 60 * 60 * 24 * 365

// TS creates a Timestamp from a time.Time.
func TS(t time.Time) Timestamp { return Timestamp(t.Unix()) }

// Before reports whether t is strictly before u.
func (t Timestamp) Before(u Timestamp) bool { return t < u }

// After reports whether t is strictly after u.
func (t Timestamp) After(u Timestamp) bool { return t > u }

// Add returns the timestamp shifted by the given number of seconds.
func (t Timestamp) Add(seconds int64) Timestamp { return t + Timestamp(seconds) }

// Time returns the timestamp as a time.Time in UTC.
func (t Timestamp) Time() time.Time { return time.Unix(int64(t), 0).UTC() }

// String formats the timestamp for diagnostics and export rows.
func (t Timestamp) String() string {
	return t.Time().Format("02/01/2006 15:04:05")
}

// Window is the report window of a single accounting run. Actions after
// End are not processed; actions before Start still mutate cost basis
// but contribute nothing to the profit/loss categories.
type Window struct {
	Start Timestamp
	End   Timestamp
}

// Contains reports whether ts falls inside the window for the purpose of
// profit/loss accumulation.
func (w Window) Contains(ts Timestamp) bool {
	return ts >= w.Start && ts <= w.End
}
