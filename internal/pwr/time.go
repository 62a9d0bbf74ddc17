package pwr

import "time"

// Time is a timestamp in nanoseconds since the Unix epoch.
type Time uint64

func Now() Time {
	return FromTime(time.Now())
}

func FromTime(t time.Time) Time {
	if t.IsZero() {
		return 0
	}
	return Time(t.UnixNano())
}

func (t Time) Time() time.Time {
	return time.Unix(0, int64(t))
}

// Latest returns the newest of the given times.
func Latest(times ...Time) Time {
	var out Time
	for _, t := range times {
		if t > out {
			out = t
		}
	}
	return out
}
