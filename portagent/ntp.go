package portagent

import (
	"time"
)

// NTPEpochOffset is the number of seconds from NTP epoch (1900-01-01) to Unix epoch (1970-01-01)
const NTPEpochOffset = 2208988800

// NTPToTime converts NTP seconds and fraction of second (in 1/2^32) to time
//
// Zero NTP time is converted to zero time.Time, for packets without timestamp
func NTPToTime(seconds uint32, fraction uint32) time.Time {
	if seconds == 0 && fraction == 0 {
		return time.Time{}
	}
	nanos := (uint64(fraction) * uint64(time.Second)) >> 32
	return time.Unix(int64(seconds)-NTPEpochOffset, int64(nanos)).UTC()
}

// TimeToNTP converts time to NTP seconds and fraction of second
//
// Zero time and time before NTP epoch are converted to zeros. The fraction is rounded down.
func TimeToNTP(t time.Time) (uint32, uint32) {
	if t.IsZero() {
		return 0, 0
	}
	seconds := t.Unix() + NTPEpochOffset
	if seconds < 0 || seconds > 0xFFFFFFFF {
		return 0, 0
	}
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return uint32(seconds), uint32(fraction)
}

// NTPFloat returns NTP time as float seconds, the representation used in port agent logs and record timestamps
func NTPFloat(t time.Time) float64 {
	seconds, fraction := TimeToNTP(t)
	return float64(seconds) + float64(fraction)/(1<<32)
}
