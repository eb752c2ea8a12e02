package tz

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// aliases maps common zone codes and shorthands to IANA identifiers.
// Codes are matched case-insensitively. DST and non-DST variants of the same
// region resolve to the same location, the offset comes from the date.
var aliases = map[string]string{
	"utc":  "UTC",
	"gmt":  "Etc/GMT",
	"et":   "America/New_York",
	"est":  "America/New_York",
	"edt":  "America/New_York",
	"ct":   "America/Chicago",
	"cst":  "America/Chicago",
	"cdt":  "America/Chicago",
	"mt":   "America/Denver",
	"mst":  "America/Denver",
	"mdt":  "America/Denver",
	"pt":   "America/Los_Angeles",
	"pst":  "America/Los_Angeles",
	"pdt":  "America/Los_Angeles",
	"bst":  "Europe/London",
	"cet":  "Europe/Berlin",
	"cest": "Europe/Berlin",
	"eet":  "Europe/Helsinki",
	"msk":  "Europe/Moscow",
	"ist":  "Asia/Kolkata",
	"sgt":  "Asia/Singapore",
	"hkt":  "Asia/Hong_Kong",
	"jst":  "Asia/Tokyo",
	"kst":  "Asia/Seoul",
	"aest": "Australia/Sydney",
	"aedt": "Australia/Sydney",
	"awst": "Australia/Perth",
	"nzst": "Pacific/Auckland",
	"nzdt": "Pacific/Auckland",
}

// Resolve turns free-text timezone input into a canonical IANA identifier.
// It tries the alias table first, then the input itself with spaces
// normalized to underscores. Returns false when nothing matches.
func Resolve(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if canonical, ok := aliases[strings.ToLower(s)]; ok {
		return canonical, true
	}
	s = strings.ReplaceAll(s, " ", "_")
	if IsValid(s) {
		return s, true
	}
	// Identifiers are case-sensitive on most systems; retry with the usual
	// Area/City capitalization so "america/new york" still resolves.
	c := canonicalCase(s)
	if IsValid(c) {
		return c, true
	}
	return "", false
}

// IsValid reports whether the identifier names a loadable location.
func IsValid(tz string) bool {
	if strings.TrimSpace(tz) == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Abbreviation returns the short zone name ("CEST", "PDT") for display,
// evaluated at the given instant so DST is accounted for.
func Abbreviation(tz string, at time.Time) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return tz
	}
	return at.In(loc).Format("MST")
}

// Effective resolves the timezone of an action: user override first, then
// community default, then the host's local timezone.
func Effective(userTZ, communityTZ string) *time.Location {
	for _, candidate := range []string{userTZ, communityTZ} {
		if candidate == "" {
			continue
		}
		if loc, err := time.LoadLocation(candidate); err == nil {
			return loc
		}
	}
	return time.Local
}

func canonicalCase(s string) string {
	parts := strings.Split(s, "/")
	for i, part := range parts {
		words := strings.Split(part, "_")
		for j, w := range words {
			if w == "" {
				continue
			}
			words[j] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		parts[i] = strings.Join(words, "_")
	}
	return strings.Join(parts, "/")
}

// dateLayouts is the date-format set shared by the creation wizard and the
// direct create command.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"Jan 2 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"January 2, 2006",
}

// ParseDate parses a date token in the given location. "today" and
// "tomorrow" are relative to now in that location. The result is midnight
// local time; combine it with a clock via Combine.
func ParseDate(raw string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(raw)
	local := now.In(loc)
	switch strings.ToLower(s) {
	case "today":
		y, m, d := local.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	case "tomorrow":
		y, m, d := local.AddDate(0, 0, 1).Date()
		return time.Date(y, m, d, 0, 0, 0, 0, loc), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// ParseClock parses "HH:mm" (or "H:mm") into hour and minute.
func ParseClock(raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unrecognized time %q, expected HH:mm", raw)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", raw)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", raw)
	}
	return h, m, nil
}

// ApplyMeridiem adjusts an hour by a trailing am/pm token: "12 am" becomes
// hour 0, "N pm" for N != 12 adds twelve. Hours above 12 cannot carry a
// meridiem.
func ApplyMeridiem(hour int, token string) (int, error) {
	if hour > 12 {
		return 0, fmt.Errorf("hour %d cannot be combined with am/pm", hour)
	}
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "am":
		if hour == 12 {
			return 0, nil
		}
		return hour, nil
	case "pm":
		if hour == 12 {
			return hour, nil
		}
		return hour + 12, nil
	default:
		return 0, fmt.Errorf("unrecognized meridiem %q", token)
	}
}

// Combine merges a local date with a clock time and returns the absolute
// instant in UTC.
func Combine(date time.Time, hour, minute int, loc *time.Location) time.Time {
	y, m, d := date.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, loc).UTC()
}
