package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	isoPeriodRe   = regexp.MustCompile(`^(\d{4})-(\d{1,2})$`)
	slashPeriodRe = regexp.MustCompile(`^(\d{1,2})\s*/\s*(\d{4})$`)
)

// Period is a calendar month.
type Period struct {
	Month int
	Year  int
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// ParsePeriod reads a month given as "2025-03" or "3/2025".
func ParsePeriod(raw string) (Period, error) {
	s := strings.TrimSpace(raw)

	var monthStr, yearStr string
	if m := isoPeriodRe.FindStringSubmatch(s); m != nil {
		yearStr, monthStr = m[1], m[2]
	} else if m := slashPeriodRe.FindStringSubmatch(s); m != nil {
		monthStr, yearStr = m[1], m[2]
	} else {
		return Period{}, fmt.Errorf("unable to parse period: %q", raw)
	}

	month, err := strconv.Atoi(monthStr)
	if err != nil {
		return Period{}, fmt.Errorf("unable to parse month from %q: %w", raw, err)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return Period{}, fmt.Errorf("unable to parse year from %q: %w", raw, err)
	}
	if month < 1 || month > 12 {
		return Period{}, fmt.Errorf("month %d out of range in %q", month, raw)
	}
	if year < 2000 || year > 9999 {
		return Period{}, fmt.Errorf("year %d out of range in %q", year, raw)
	}
	return Period{Month: month, Year: year}, nil
}
