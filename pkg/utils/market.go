package utils

import "time"

// IndiaLocation is exchange time. Without tzdata it is a fixed UTC+5:30.
var IndiaLocation = loadIST()

func loadIST() *time.Location {
	if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
		return loc
	}
	return time.FixedZone("IST", (5*60+30)*60)
}

// MarketSession is the NSE equity session at a point in time.
type MarketSession string

const (
	SessionPreOpen   MarketSession = "PRE_OPEN"
	SessionOpen      MarketSession = "OPEN"
	SessionSquareOff MarketSession = "MIS_SQUAREOFF_WARNING"
	SessionClosed    MarketSession = "CLOSED"
)

// sessionWindows are [from, to) in minutes after midnight IST. The
// square-off window sits inside regular trading and is listed first.
var sessionWindows = []struct {
	from, to int
	session  MarketSession
}{
	{9 * 60, 9*60 + 15, SessionPreOpen},
	{15 * 60, 15*60 + 15, SessionSquareOff},
	{9*60 + 15, 15*60 + 30, SessionOpen},
}

func isWeekend(t time.Time) bool {
	d := t.Weekday()
	return d == time.Saturday || d == time.Sunday
}

// SessionAt returns the session at t. Exchange holidays are not known
// here; the backend's status covers those.
func SessionAt(t time.Time) MarketSession {
	t = t.In(IndiaLocation)
	if isWeekend(t) {
		return SessionClosed
	}
	minute := t.Hour()*60 + t.Minute()
	for _, w := range sessionWindows {
		if minute >= w.from && minute < w.to {
			return w.session
		}
	}
	return SessionClosed
}

// NextMarketOpen returns the first weekday 09:15 IST strictly after t.
func NextMarketOpen(t time.Time) time.Time {
	t = t.In(IndiaLocation)
	open := time.Date(t.Year(), t.Month(), t.Day(), 9, 15, 0, 0, IndiaLocation)
	if !t.Before(open) {
		open = open.AddDate(0, 0, 1)
	}
	for isWeekend(open) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// DescribeSession renders the session at t for status footers, adding
// the next open when the market is closed.
func DescribeSession(t time.Time) string {
	s := SessionAt(t)
	if s != SessionClosed {
		return string(s)
	}
	return string(s) + ", opens " + NextMarketOpen(t).Format("Mon 02-Jan 15:04")
}
