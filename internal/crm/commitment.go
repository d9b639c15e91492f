package crm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Commitment extraction scans interaction notes for a promised follow-up
// date. It is a heuristic: explicit dates win over relative phrases, and the
// first match in the text is taken.

var (
	// "by 2026-09-15", "due 2026-09-15", "before 2026-09-15"
	isoDatePattern = regexp.MustCompile(`(?i)\b(?:by|due|before|until|on)\s+(\d{4})-(\d{2})-(\d{2})\b`)

	// "by Sep 15", "due September 15, 2026"
	monthDayPattern = regexp.MustCompile(`(?i)\b(?:by|due|before|until|on)\s+(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)

	// "in 3 days", "in 2 weeks"
	relativePattern = regexp.MustCompile(`(?i)\bin\s+(\d{1,2})\s+(day|week|month)s?\b`)

	// "tomorrow", "next week", "next month"
	namedPattern = regexp.MustCompile(`(?i)\b(tomorrow|next week|next month)\b`)
)

var monthsByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ExtractCommitment returns the follow-up date implied by the notes, or nil
// when no pattern matches. Dates resolve in the caller's notion of now; a
// month-day with no year rolls into next year if it already passed.
func ExtractCommitment(notes string, now time.Time) *time.Time {
	if m := isoDatePattern.FindStringSubmatch(notes); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			due := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
			return &due
		}
	}

	if m := monthDayPattern.FindStringSubmatch(notes); m != nil {
		month := monthsByPrefix[strings.ToLower(m[1][:3])]
		day, _ := strconv.Atoi(m[2])
		if day >= 1 && day <= 31 {
			year := now.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			due := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
			if m[3] == "" && due.Before(now) {
				due = due.AddDate(1, 0, 0)
			}
			return &due
		}
	}

	if m := relativePattern.FindStringSubmatch(notes); m != nil {
		n, _ := strconv.Atoi(m[1])
		var due time.Time
		switch strings.ToLower(m[2]) {
		case "day":
			due = now.AddDate(0, 0, n)
		case "week":
			due = now.AddDate(0, 0, 7*n)
		case "month":
			due = now.AddDate(0, n, 0)
		}
		return &due
	}

	if m := namedPattern.FindStringSubmatch(notes); m != nil {
		var due time.Time
		switch strings.ToLower(m[1]) {
		case "tomorrow":
			due = now.AddDate(0, 0, 1)
		case "next week":
			due = now.AddDate(0, 0, 7)
		case "next month":
			due = now.AddDate(0, 1, 0)
		}
		return &due
	}

	return nil
}
