package cloner

import (
	"regexp"
	"strings"
	"time"
)

// nameDateLayout is the date format embedded in email names, e.g.
// "Acme Newsletter - 05 Mar 2025".
const nameDateLayout = "02 Jan 2006"

var datePattern = regexp.MustCompile(`\b\d{2} (Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) \d{4}\b`)

// shiftNameDate finds the date substring in name and replaces it with the
// same date moved forward by days, formatted identically. It returns the
// shifted date alongside the new name, and ok=false when the name carries
// no recognizable date.
func shiftNameDate(name string, days int) (string, time.Time, bool) {
	match := datePattern.FindString(name)
	if match == "" {
		return "", time.Time{}, false
	}
	parsed, err := time.Parse(nameDateLayout, match)
	if err != nil {
		return "", time.Time{}, false
	}
	shifted := parsed.AddDate(0, 0, days)
	return strings.Replace(name, match, shifted.Format(nameDateLayout), 1), shifted, true
}
