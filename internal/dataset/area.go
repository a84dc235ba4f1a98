package dataset

import (
	"regexp"
	"strconv"
	"strings"
)

// Dublin postal district patterns, tried in order against the uppercased
// address. First match wins.
var (
	reDublinSpaced = regexp.MustCompile(`DUBLIN\s+(\d{1,2})`)
	reDShort       = regexp.MustCompile(`\bD(\d{1,2})\b`)
	reDZero        = regexp.MustCompile(`\bD0(\d)\b`)

	reAreaToken = regexp.MustCompile(`dublin-(\d+)`)
	reDigits    = regexp.MustCompile(`(\d+)`)

	rePerWeek  = regexp.MustCompile(`€([\d,]+)\s*(?i:per week)`)
	rePerMonth = regexp.MustCompile(`€([\d,]+)\s*(?i:per month)`)
	reEuro     = regexp.MustCompile(`€([\d,]+)`)
)

// ExtractDublinArea pulls a numeric Dublin postal district out of a
// free-text listing address. Extraction is deterministic: the three
// patterns are applied in priority order and the first match wins.
func ExtractDublinArea(address string) (int, bool) {
	s := strings.ToUpper(strings.TrimSpace(address))
	if s == "" {
		return 0, false
	}
	for _, re := range []*regexp.Regexp{reDublinSpaced, reDShort, reDZero} {
		if m := re.FindStringSubmatch(s); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return n, true
		}
	}
	return 0, false
}

// AreaFromToken parses the area token supplied with a prediction query
// ("dublin-7" style). Falls back to any embedded digit run, then to
// district 1 so a malformed token still encodes.
func AreaFromToken(token string) int {
	s := strings.ToLower(strings.TrimSpace(token))
	if m := reAreaToken.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	if m := reDigits.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 1
}

// normalizePrice coerces a scraped price field to a monthly numeric value.
// Handles the "N/A" sentinel, plain numbers and currency strings; weekly
// prices convert to monthly at four weeks per month.
func normalizePrice(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "N/A") {
		return 0, false
	}
	if m := rePerWeek.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(stripCommas(m[1]), 64); err == nil {
			return v * 4, true
		}
	}
	if m := rePerMonth.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(stripCommas(m[1]), 64); err == nil {
			return v, true
		}
	}
	if m := reEuro.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(stripCommas(m[1]), 64); err == nil {
			return v, true
		}
	}
	if v, err := strconv.ParseFloat(stripCommas(s), 64); err == nil {
		return v, true
	}
	return 0, false
}

// roomTypeFromBeds maps the free-text beds field of shared-room listings
// ("single"/"double"/"twin"/"shared") to a room type when the row has no
// room_type of its own. Unmatched non-empty text defaults to single
// occupancy; empty stays missing.
func roomTypeFromBeds(beds string) string {
	s := strings.ToLower(strings.TrimSpace(beds))
	if s == "" {
		return ""
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return ""
	}
	for _, rt := range []string{"single", "double", "twin", "shared"} {
		if strings.Contains(s, rt) {
			return rt
		}
	}
	return "single"
}

func stripCommas(s string) string {
	return strings.ReplaceAll(s, ",", "")
}
