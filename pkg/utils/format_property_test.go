package utils

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

var indianPattern = regexp.MustCompile(`^(\d{1,2},)*\d{1,3}$`)

func TestProperty_IndianCurrencyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatIndianCurrency produces valid Indian format", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatIndianCurrency(amount)

			prefix := "₹"
			if amount < 0 {
				prefix = "-₹"
			}
			if !strings.HasPrefix(formatted, prefix) {
				t.Logf("expected %s prefix for %f, got %s", prefix, amount, formatted)
				return false
			}

			parts := strings.Split(formatted, ".")
			if len(parts) != 2 || len(parts[1]) != 2 {
				t.Logf("expected 2 decimal places for %f, got %s", amount, formatted)
				return false
			}

			numPart := strings.TrimPrefix(strings.TrimPrefix(parts[0], "-"), "₹")
			if !indianPattern.MatchString(numPart) {
				t.Logf("invalid Indian format for %f: %s", amount, formatted)
				return false
			}
			return true
		},
		gen.Float64Range(-1e12, 1e12),
	))

	properties.Property("FormatIndianCurrency preserves value", prop.ForAll(
		func(amount float64) bool {
			parsed := parseIndianCurrency(FormatIndianCurrency(amount))
			rounded := math.Round(amount*100) / 100
			return math.Abs(parsed-rounded) <= 0.01
		},
		gen.Float64Range(-1e9, 1e9),
	))

	properties.Property("FormatPercent signs positive values", prop.ForAll(
		func(value float64) bool {
			formatted := FormatPercent(value)
			if !strings.HasSuffix(formatted, "%") {
				return false
			}
			return value <= 0 || strings.HasPrefix(formatted, "+")
		},
		gen.Float64Range(-100, 100),
	))

	properties.Property("FormatCompact uses correct units", prop.ForAll(
		func(amount float64) bool {
			formatted := FormatCompact(amount)
			abs := math.Abs(amount)
			switch {
			case abs >= 10000000:
				return strings.HasSuffix(formatted, "Cr")
			case abs >= 100000:
				return strings.HasSuffix(formatted, "L")
			}
			return strings.Contains(formatted, "₹")
		},
		gen.Float64Range(-1e10, 1e10),
	))

	properties.Property("FormatVolume uses correct units", prop.ForAll(
		func(volume int64) bool {
			formatted := FormatVolume(volume)
			switch {
			case volume >= 10000000:
				return strings.HasSuffix(formatted, "Cr")
			case volume >= 100000:
				return strings.HasSuffix(formatted, "L")
			case volume >= 1000:
				return strings.HasSuffix(formatted, "K")
			}
			return formatted == strconv.FormatInt(volume, 10)
		},
		gen.Int64Range(0, 1e12),
	))

	properties.TestingRun(t)
}

func parseIndianCurrency(s string) float64 {
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	parsed, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	if negative {
		return -parsed
	}
	return parsed
}

func TestIndianNumberFormatExamples(t *testing.T) {
	testCases := []struct {
		amount   float64
		expected string
	}{
		{0, "₹0.00"},
		{1, "₹1.00"},
		{1000, "₹1,000.00"},
		{100000, "₹1,00,000.00"},
		{1000000, "₹10,00,000.00"},
		{10000000, "₹1,00,00,000.00"},
		{-1234.56, "-₹1,234.56"},
		{12345678.90, "₹1,23,45,678.90"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, FormatIndianCurrency(tc.amount))
		})
	}
}

func TestFormatPercentExamples(t *testing.T) {
	assert.Equal(t, "0.00%", FormatPercent(0))
	assert.Equal(t, "+1.50%", FormatPercent(1.5))
	assert.Equal(t, "-2.50%", FormatPercent(-2.5))
}

func TestFormatPnL(t *testing.T) {
	assert.Equal(t, "+₹1,250.00", FormatPnL(1250))
	assert.Equal(t, "-₹80.50", FormatPnL(-80.5))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", FormatDuration(125*time.Second))
	assert.Equal(t, "3h 10m", FormatDuration(3*time.Hour+10*time.Minute))
	assert.Equal(t, "1d 2h", FormatDuration(26*time.Hour))
}

func TestFormatDateTimeUsesIST(t *testing.T) {
	ts := time.Date(2024, 3, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, "01-Mar-2024 09:30:00", FormatDateTime(ts))
	assert.Equal(t, "-", FormatDateTime(time.Time{}))
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "950", FormatQuantity(950))
	assert.Equal(t, "12,500", FormatQuantity(12500))
	assert.Equal(t, "-1,00,000", FormatQuantity(-100000))
}
