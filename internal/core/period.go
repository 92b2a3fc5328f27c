package core

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Period selects entries by calendar year and/or month. A zero field does not
// filter; the zero Period matches every entry, dated or not.
type Period struct {
	Year  int
	Month int // 1-12
}

// Month returns the period for a single month.
func Month(year, month int) Period {
	return Period{Year: year, Month: month}
}

// Year returns the period for a whole year.
func Year(year int) Period {
	return Period{Year: year}
}

// IsZero reports whether p applies no filter.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Matches reports whether an entry dated date falls in p. Entries without a
// parsable date only match the zero Period.
func (p Period) Matches(date string) bool {
	if p.IsZero() {
		return true
	}
	d, ok := ParseDate(date)
	if !ok {
		return false
	}
	if p.Year != 0 && d.Year() != p.Year {
		return false
	}
	if p.Month != 0 && int(d.Month()) != p.Month {
		return false
	}
	return true
}

func (p Period) String() string {
	switch {
	case p.IsZero():
		return "all"
	case p.Month == 0:
		return fmt.Sprintf("%04d", p.Year)
	case p.Year == 0:
		return fmt.Sprintf("*-%02d", p.Month)
	default:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
	}
}

// ParseDate parses an ISO calendar date.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatDate renders t as an ISO calendar date.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}
