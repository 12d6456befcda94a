package transform

import (
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	fileMonthPattern = regexp.MustCompile(`(\d{4})-(\d{2})`)

	isoDatePattern   = regexp.MustCompile(`(\d{4})-(\d{1,2})(?:-\d{1,2})?`)
	slashDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{4})`)
	namedDatePattern = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?,?\s+(\d{4})\b`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

// dateFieldKeys are scanned before any other field, in this order.
var dateFieldKeys = []string{"date", "report_date", "period", "month"}

// monthStart returns the first day of the month in UTC.
func monthStart(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}

func yearMonth(yearText, monthText string) (time.Time, bool) {
	year, err := strconv.Atoi(yearText)
	if err != nil || year < 1900 || year > 9999 {
		return time.Time{}, false
	}
	month, err := strconv.Atoi(monthText)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	return monthStart(year, time.Month(month)), true
}

// digitBounded returns the submatches of re in s that are not glued to
// further digits on either side.
func digitBounded(re *regexp.Regexp, s string) [][]string {
	var out [][]string
	for _, idx := range re.FindAllStringSubmatchIndex(s, -1) {
		start, end := idx[0], idx[1]
		if start > 0 && isDigit(s[start-1]) || end < len(s) && isDigit(s[end]) {
			continue
		}
		m := make([]string, len(idx)/2)
		for i := range m {
			if idx[2*i] >= 0 {
				m[i] = s[idx[2*i]:idx[2*i+1]]
			}
		}
		out = append(out, m)
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// DateFromFileName returns the month named by the first valid YYYY-MM token
// in the base name of sourceFile.
func DateFromFileName(sourceFile string) (time.Time, bool) {
	base := filepath.Base(filepath.ToSlash(sourceFile))
	for _, m := range digitBounded(fileMonthPattern, base) {
		if t, ok := yearMonth(m[1], m[2]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// DateFromText finds a date-like token in free text: YYYY-MM[-DD],
// MM/YYYY, or a month name followed by a year.
func DateFromText(s string) (time.Time, bool) {
	for _, m := range digitBounded(isoDatePattern, s) {
		if t, ok := yearMonth(m[1], m[2]); ok {
			return t, true
		}
	}
	for _, m := range digitBounded(slashDatePattern, s) {
		if t, ok := yearMonth(m[2], m[1]); ok {
			return t, true
		}
	}
	if m := namedDatePattern.FindStringSubmatch(s); m != nil {
		month := monthByPrefix[strings.ToLower(m[1][:3])]
		if year, err := strconv.Atoi(m[2]); err == nil && year >= 1900 {
			return monthStart(year, month), true
		}
	}
	return time.Time{}, false
}

// DateFromFields scans the text fields of a raw row, preferred date keys
// first and then the remaining keys in sorted order.
func DateFromFields(fields map[string]any) (time.Time, bool) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		pi, pj := datePriority(keys[i]), datePriority(keys[j])
		if pi != pj {
			return pi < pj
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if t, ok := DateFromText(v); ok {
				return t, true
			}
		case time.Time:
			if !v.IsZero() {
				return monthStart(v.UTC().Year(), v.UTC().Month()), true
			}
		}
	}
	return time.Time{}, false
}

func datePriority(key string) int {
	k := strings.ReplaceAll(NormalizeName(key), " ", "_")
	for i, candidate := range dateFieldKeys {
		if k == candidate {
			return i
		}
	}
	return len(dateFieldKeys)
}
