package scraper

import (
	"regexp"
	"strconv"
	"strings"
)

// priceRe matches the first currency-tagged amount in a text blob,
// e.g. "$1,234" inside "From $1,234 round trip".
var priceRe = regexp.MustCompile(`[\$£€¥]?[\d,]+`)

// durationJunkRe strips decoration glyphs from displayed durations while
// keeping digits, unit words, spaces, and the h:mm colon.
var durationJunkRe = regexp.MustCompile(`[^\w\s:]`)

// clockRe matches displayed clock times like "8:30", "11:45 AM".
var clockRe = regexp.MustCompile(`\d{1,2}:\d{2}\s*(?:[APap][Mm])?`)

// stopsDigitsRe finds the leading stop count in labels like "2 stops".
var stopsDigitsRe = regexp.MustCompile(`\d+`)

// ParsePrice extracts the first price-looking amount from text and returns
// its numeric value. ok is false when the text carries no digits.
func ParsePrice(text string) (float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, false
	}
	match := priceRe.FindString(text)
	if match == "" {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, match)
	if digits == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseStops reads a stop count from display text like "1 stop" or
// "Nonstop". Non-empty text without a count reads as one stop, matching
// how the results page abbreviates multi-leg labels.
func ParseStops(text string) int {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return 0
	}
	if strings.Contains(t, "nonstop") || strings.Contains(t, "direct") {
		return 0
	}
	if m := stopsDigitsRe.FindString(t); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	return 1
}

// ParseDuration normalizes a displayed duration like "5 hr 20 min" or
// "5:20", dropping decoration characters. Returns "Unknown" when nothing
// readable remains.
func ParseDuration(text string) string {
	cleaned := strings.TrimSpace(durationJunkRe.ReplaceAllString(text, ""))
	if cleaned == "" {
		return "Unknown"
	}
	return cleaned
}

// ParseClockTimes returns every clock-looking time in text, in order.
// The first and last entries of a card's combined text are the departure
// and arrival times.
func ParseClockTimes(text string) []string {
	matches := clockRe.FindAllString(text, -1)
	for i, m := range matches {
		matches[i] = strings.TrimSpace(m)
	}
	return matches
}

func hasDigit(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
}

func hasCurrencyHint(s string) bool {
	return strings.ContainsAny(s, "$£€¥")
}
