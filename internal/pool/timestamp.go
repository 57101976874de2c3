package pool

import (
	"errors"
	"time"
)

// ErrInvalidTimestamp is returned for values no supported layout accepts.
var ErrInvalidTimestamp = errors.New("invalid timestamp")

// Fallback layouts, tried in order after the caller's layout.
var fallbackLayouts = []string{
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05.000Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006 15:04:05", // DD/MM/YYYY
	"01/02/2006 15:04:05", // MM/DD/YYYY
	"2006/01/02 15:04:05",
	time.RFC3339Nano,
}

// ParseTimestamp parses a timestamp byte slice.
// The ISO 8601 family is parsed by direct byte inspection; other inputs
// fall back to layout (when non-empty) and then to fallbackLayouts.
// Timestamps without a zone are interpreted as UTC.
func ParseTimestamp(b []byte, layout string) (time.Time, error) {
	b = TrimSpaces(b)
	if len(b) == 0 {
		return time.Time{}, ErrInvalidTimestamp
	}

	if len(b) >= 10 && b[4] == '-' && b[7] == '-' {
		if t, err := parseISO8601Fast(b); err == nil {
			return t, nil
		}
	}

	s := BytesToString(b)
	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, l := range fallbackLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}

	if isNumeric(b) {
		return parseExcelEpoch(b)
	}
	return time.Time{}, ErrInvalidTimestamp
}

// parseISO8601Fast reads YYYY-MM-DD[(T| )hh:mm:ss[.f][Z|±hh[:mm]]].
func parseISO8601Fast(b []byte) (time.Time, error) {
	year := parseInt4(b[0:4])
	month := parseInt2(b[5:7])
	day := parseInt2(b[8:10])

	if year < 0 || month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, ErrInvalidTimestamp
	}

	var hour, minute, second, nsec int
	loc := time.UTC

	if len(b) > 10 {
		if b[10] != 'T' && b[10] != ' ' {
			return time.Time{}, ErrInvalidTimestamp
		}
		if len(b) < 19 || b[13] != ':' || b[16] != ':' {
			return time.Time{}, ErrInvalidTimestamp
		}
		hour = parseInt2(b[11:13])
		minute = parseInt2(b[14:16])
		second = parseInt2(b[17:19])
		if hour < 0 || hour > 23 || minute < 0 || minute > 59 || second < 0 || second > 60 {
			return time.Time{}, ErrInvalidTimestamp
		}

		rest := b[19:]
		if len(rest) > 0 && rest[0] == '.' {
			end := 1
			for end < len(rest) && isDigit(rest[end]) {
				end++
			}
			nsec = parseFraction(rest[1:end])
			rest = rest[end:]
		}

		switch {
		case len(rest) == 0:
		case len(rest) == 1 && rest[0] == 'Z':
		case rest[0] == '+' || rest[0] == '-':
			offset, ok := parseOffset(rest[1:])
			if !ok {
				return time.Time{}, ErrInvalidTimestamp
			}
			if rest[0] == '-' {
				offset = -offset
			}
			loc = time.FixedZone("", offset)
		default:
			return time.Time{}, ErrInvalidTimestamp
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc), nil
}

// parseOffset parses "hh:mm", "hhmm" or "hh" into seconds east of UTC.
func parseOffset(b []byte) (int, bool) {
	var h, m int
	switch len(b) {
	case 2:
		h = parseInt2(b)
	case 4:
		h, m = parseInt2(b[0:2]), parseInt2(b[2:4])
	case 5:
		if b[2] != ':' {
			return 0, false
		}
		h, m = parseInt2(b[0:2]), parseInt2(b[3:5])
	default:
		return 0, false
	}
	if h < 0 || m < 0 {
		return 0, false
	}
	return h*3600 + m*60, true
}

// parseExcelEpoch parses Excel-style serial dates (days since 1899-12-30).
func parseExcelEpoch(b []byte) (time.Time, error) {
	excelEpoch := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

	val, err := ParseFloat64(b)
	if err != nil || val < 0 {
		return time.Time{}, ErrInvalidTimestamp
	}

	days := int64(val)
	fraction := val - float64(days)
	t := excelEpoch.AddDate(0, 0, int(days))
	if fraction > 0 {
		t = t.Add(time.Duration(fraction * 24 * float64(time.Hour)))
	}
	return t, nil
}

// parseInt4 returns the value of four ASCII digits, or -1.
func parseInt4(b []byte) int {
	if len(b) != 4 || !isDigit(b[0]) || !isDigit(b[1]) || !isDigit(b[2]) || !isDigit(b[3]) {
		return -1
	}
	return int(b[0]-'0')*1000 + int(b[1]-'0')*100 + int(b[2]-'0')*10 + int(b[3]-'0')
}

func parseInt2(b []byte) int {
	if len(b) != 2 || !isDigit(b[0]) || !isDigit(b[1]) {
		return -1
	}
	return int(b[0]-'0')*10 + int(b[1]-'0')
}

// parseFraction converts the digits after the decimal point to nanoseconds;
// digits past the ninth are dropped.
func parseFraction(b []byte) int {
	ns, scale := 0, 100_000_000
	for _, c := range b {
		if scale == 0 {
			break
		}
		ns += int(c-'0') * scale
		scale /= 10
	}
	return ns
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

// isNumeric reports whether b is an unsigned decimal such as 44927.5.
func isNumeric(b []byte) bool {
	dot := false
	for _, c := range b {
		switch {
		case isDigit(c):
		case c == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return len(b) > 0
}
