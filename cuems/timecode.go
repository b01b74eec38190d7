package cuems

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// ZeroTimecode is the canonical empty HH:MM:SS.mmm timecode
	ZeroTimecode = "00:00:00.000"

	smpteFPS = 25
	// 99:59:59 at frame 24
	maxSMPTEMillis = (99*3600+59*60+59)*1000 + 24*1000/smpteFPS
)

// TimecodeToSMPTE formats elapsed milliseconds as HH:MM:SS:FF at 25 fps.
// Negative input clamps to zero and the result never exceeds 99:59:59:24.
func TimecodeToSMPTE(ms float64) string {
	if math.IsNaN(ms) || ms < 0 {
		ms = 0
	}
	if ms > maxSMPTEMillis {
		ms = maxSMPTEMillis
	}

	millis := int64(math.Floor(ms))
	secs := millis / 1000
	frame := (millis % 1000) * smpteFPS / 1000
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60, frame)
}

// NormalizeTimecode guarantees a milliseconds component: a value with no
// fractional part gets ".000" appended, anything else is kept verbatim.
// Empty input becomes ZeroTimecode.
func NormalizeTimecode(tc string) string {
	tc = strings.TrimSpace(tc)
	if tc == "" {
		return ZeroTimecode
	}
	if !strings.Contains(tc, ".") {
		return tc + ".000"
	}
	return tc
}

// ParseTimecode converts HH:MM:SS(.mmm) into milliseconds
func ParseTimecode(tc string) (int64, error) {
	tc = NormalizeTimecode(tc)
	main, frac, _ := strings.Cut(tc, ".")

	parts := strings.Split(main, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid timecode %q: want HH:MM:SS.mmm", tc)
	}

	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timecode %q: %q is not a number", tc, p)
		}
		total = total*60 + n
	}

	frac = (frac + "000")[:3]
	millis, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timecode %q: bad milliseconds", tc)
	}
	return total*1000 + millis, nil
}

// FormatTimecode renders milliseconds as HH:MM:SS.mmm
func FormatTimecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", secs/3600, (secs%3600)/60, secs%60, ms%1000)
}
