package ingest

import (
	"time"

	"eulerbt/internal/domain"
	"eulerbt/internal/util"
)

// ResampleDaily aggregates intraday bars (sorted by time) into one bar per
// trading date. The bar for date D covers (close on the previous trading
// date, close on D]. Its open is the first bar after the close on the
// previous date, searching earlier dates when that one has none, and its close
// is the bar stamped exactly at D's close. Dates without trades in the
// window, without an open, or without a bar at the close are skipped. The
// first date never produces a bar.
func ResampleDaily(bars []domain.Bar, cal *util.SessionCalendar) []domain.Bar {
	var (
		dates []time.Time
		byDay = make(map[time.Time][]domain.Bar)
	)
	for _, b := range bars {
		d := cal.Date(b.Timestamp)
		if _, ok := byDay[d]; !ok {
			dates = append(dates, d)
		}
		byDay[d] = append(byDay[d], b)
	}

	out := make([]domain.Bar, 0, len(dates))
	for i := 1; i < len(dates); i++ {
		prev, cur := dates[i-1], dates[i]
		start := cal.CloseOn(prev).Add(time.Second)
		end := cal.CloseOn(cur)

		var (
			day   domain.Bar
			found bool
		)
		for _, b := range bars {
			if b.Timestamp.Before(start) || b.Timestamp.After(end) {
				continue
			}
			if !found {
				day.High, day.Low = b.High, b.Low
				found = true
			}
			day.High = max(day.High, b.High)
			day.Low = min(day.Low, b.Low)
			day.Volume += b.Volume
		}
		if !found {
			continue
		}

		open, ok := sessionOpen(dates[:i], byDay, cal)
		if !ok {
			continue
		}

		closeBar, ok := barAtClose(byDay[cur], cal)
		if !ok {
			continue
		}

		day.Symbol = closeBar.Symbol
		day.Timestamp = cur
		day.Open = open
		day.Close = closeBar.Close
		out = append(out, day)
	}
	return out
}

// sessionOpen returns the open of the first post-close bar on the latest of
// dates that has one.
func sessionOpen(dates []time.Time, byDay map[time.Time][]domain.Bar, cal *util.SessionCalendar) (float64, bool) {
	for j := len(dates) - 1; j >= 0; j-- {
		for _, b := range byDay[dates[j]] {
			if cal.AfterClose(b.Timestamp) {
				return b.Open, true
			}
		}
	}
	return 0, false
}

func barAtClose(day []domain.Bar, cal *util.SessionCalendar) (domain.Bar, bool) {
	for _, b := range day {
		if cal.IsClose(b.Timestamp) {
			return b, true
		}
	}
	return domain.Bar{}, false
}
