package player

import (
	"strconv"
	"strings"
	"time"
)

// epochFloorMillis is 2000-01-01T00:00:00Z. Seek positions at or above it are
// treated as absolute wall clock times.
const epochFloorMillis int64 = 946684800000

const clockLayout = "20060102T150405Z"

// IsAbsolutePosition reports whether positionMillis is a wall clock time.
func IsAbsolutePosition(positionMillis int64) bool {
	return positionMillis >= epochFloorMillis
}

// formatRange renders an RTSP Range header value for a PLAY request.
func formatRange(positionMillis int64) string {
	if IsAbsolutePosition(positionMillis) {
		t := time.UnixMilli(positionMillis).UTC()
		if t.Nanosecond() == 0 {
			return "clock=" + t.Format(clockLayout) + "-"
		}
		return "clock=" + t.Format("20060102T150405.000Z") + "-"
	}
	if positionMillis < 0 {
		positionMillis = 0
	}
	return "npt=" + strconv.FormatFloat(float64(positionMillis)/1000, 'f', 3, 64) + "-"
}

// parseRangeClock extracts the absolute start of a Range header such as
// "clock=20261015T101010.250Z-". ok is false for npt/smpte ranges.
func parseRangeClock(header string) (epochMillis int64, ok bool) {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		value, found := strings.CutPrefix(part, "clock=")
		if !found {
			continue
		}
		start, _, _ := strings.Cut(value, "-")
		t, err := time.Parse(clockLayout, strings.TrimSpace(start))
		if err != nil {
			return 0, false
		}
		return t.UnixMilli(), true
	}
	return 0, false
}
