package spreadsheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Slash dates are read month first; day-first sheets use dots or dashes.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02.01.2006",
	"2.1.2006",
	"02-01-2006",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"02 Jan 2006",
}

var timeLayouts = []string{
	"15:04",
	"15:04:05",
	"3:04 PM",
	"3:04PM",
	"03:04 PM",
	"3:04:05 PM",
	"3 PM",
	"3PM",
}

// ParseDate accepts ISO, common US/EU layouts, and Excel serial numbers.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// 2958465 is 9999-12-31, the last date Excel can represent.
		if serial < 1 || serial > 2958465 {
			return time.Time{}, fmt.Errorf("invalid date serial %q", s)
		}
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date serial %q: %w", s, err)
		}
		return dateOnly(t), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// ParseTimeOfDay returns the time normalized to "HH:MM:SS". It accepts 24h
// and 12h clock text, Excel day fractions (0.375 is 09:00) and datetime
// serials with a time part. A bare whole number such as 9 is rejected.
func ParseTimeOfDay(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty time")
	}

	if num, err := strconv.ParseFloat(s, 64); err == nil {
		// A full datetime serial carries the time in its fractional part.
		whole, frac := math.Modf(num)
		if num < 0 || math.IsInf(num, 0) || math.IsNaN(num) || (whole >= 1 && frac == 0) {
			return "", fmt.Errorf("invalid time %q: not a day fraction", s)
		}
		secs := int(math.Round(frac * 86400))
		if secs >= 86400 {
			secs = 0
		}
		return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60), nil
	}

	upper := strings.ToUpper(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, upper); err == nil {
			return t.Format("15:04:05"), nil
		}
	}
	return "", fmt.Errorf("invalid time %q", s)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
