package format

import "time"

const (
	// FiletimeEpochDelta is the offset between the FILETIME epoch
	// (1601-01-01) and the Unix epoch, in 100ns units.
	FiletimeEpochDelta = 116444736000000000

	filetimeUnit = 100 // FILETIME units are 100ns
)

// minutesEpoch is 1601-01-01T00:00:00Z, the base for the minutes-granular
// date fields in recurrence blobs.
var minutesEpoch = time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)

// FiletimeToTime converts a Windows FILETIME value to time.Time.
func FiletimeToTime(v uint64) time.Time {
	if v <= FiletimeEpochDelta {
		return time.Unix(0, 0).UTC()
	}
	ns := int64((v - FiletimeEpochDelta) * filetimeUnit)
	return time.Unix(ns/int64(time.Second), ns%int64(time.Second)).UTC()
}

// TimeToFiletime converts a time.Time to a Windows FILETIME value.
func TimeToFiletime(t time.Time) uint64 {
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	return uint64(ns)/filetimeUnit + FiletimeEpochDelta
}

// FiletimeToUnixMs converts a FILETIME value to Unix milliseconds.
func FiletimeToUnixMs(v uint64) int64 {
	return (int64(v) - FiletimeEpochDelta) / 10000
}

// MinutesToTime converts minutes since 1601-01-01 to time.Time.
func MinutesToTime(m uint32) time.Time {
	return minutesEpoch.Add(time.Duration(m) * time.Minute)
}
