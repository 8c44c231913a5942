// Package utils holds the console's display formatting and market clock
// helpers.
package utils

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	lakh  = 1e5
	crore = 1e7
)

// FormatIndianCurrency renders amount in rupees with lakh/crore digit
// grouping, e.g. -₹1,23,456.70.
func FormatIndianCurrency(amount float64) string {
	sign := ""
	if amount < 0 {
		sign, amount = "-", -amount
	}
	whole, frac, _ := strings.Cut(strconv.FormatFloat(amount, 'f', 2, 64), ".")
	return sign + "₹" + groupIndian(whole) + "." + frac
}

// groupIndian inserts separators into a digit string: the last three
// digits form one group, every group before it has two.
func groupIndian(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head, tail := digits[:len(digits)-3], digits[len(digits)-3:]

	var b strings.Builder
	lead := len(head) % 2
	if lead == 1 {
		b.WriteString(head[:1])
	}
	for i := lead; i < len(head); i += 2 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(head[i : i+2])
	}
	b.WriteByte(',')
	b.WriteString(tail)
	return b.String()
}

// FormatPercent renders value with two decimals and a leading + when positive.
func FormatPercent(value float64) string {
	if value > 0 {
		return fmt.Sprintf("+%.2f%%", value)
	}
	return fmt.Sprintf("%.2f%%", value)
}

// FormatPnL is FormatIndianCurrency with an explicit + on gains.
func FormatPnL(pnl float64) string {
	if pnl > 0 {
		return "+" + FormatIndianCurrency(pnl)
	}
	return FormatIndianCurrency(pnl)
}

// FormatQuantity groups an integer quantity the Indian way.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupIndian(strconv.FormatInt(-qty, 10))
	}
	return groupIndian(strconv.FormatInt(qty, 10))
}

// FormatCompact shortens large amounts to lakhs ("12.50 L") or crores
// ("3.20 Cr"); smaller amounts use FormatIndianCurrency.
func FormatCompact(amount float64) string {
	abs := amount
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= crore:
		return fmt.Sprintf("%.2f Cr", amount/crore)
	case abs >= lakh:
		return fmt.Sprintf("%.2f L", amount/lakh)
	}
	return FormatIndianCurrency(amount)
}

// FormatVolume shortens traded volume to Cr, L or K.
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case v >= crore:
		return fmt.Sprintf("%.2f Cr", v/crore)
	case v >= lakh:
		return fmt.Sprintf("%.2f L", v/lakh)
	case v >= 1e3:
		return fmt.Sprintf("%.2f K", v/1e3)
	}
	return strconv.FormatInt(volume, 10)
}

// FormatDateTime renders t in exchange time, or "-" for the zero time.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(IndiaLocation).Format("02-Jan-2006 15:04:05")
}

// FormatDuration renders d using its two most significant units.
func FormatDuration(d time.Duration) string {
	secs := int64(d / time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", secs)
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", secs/3600, secs%3600/60)
	}
	return fmt.Sprintf("%dd %dh", secs/86400, secs%86400/3600)
}

// TruncateString cuts s to maxLen bytes, ending in "..." when there is room.
func TruncateString(s string, maxLen int) string {
	switch {
	case len(s) <= maxLen:
		return s
	case maxLen <= 3:
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
