package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionAt(t *testing.T) {
	at := func(day, hour, min int) time.Time {
		// 2024-03-04 is a Monday.
		return time.Date(2024, 3, day, hour, min, 0, 0, IndiaLocation)
	}

	assert.Equal(t, SessionClosed, SessionAt(at(4, 8, 59)))
	assert.Equal(t, SessionPreOpen, SessionAt(at(4, 9, 5)))
	assert.Equal(t, SessionOpen, SessionAt(at(4, 9, 15)))
	assert.Equal(t, SessionSquareOff, SessionAt(at(4, 15, 5)))
	assert.Equal(t, SessionOpen, SessionAt(at(4, 15, 20)))
	assert.Equal(t, SessionClosed, SessionAt(at(4, 15, 30)))
	assert.Equal(t, SessionClosed, SessionAt(at(9, 11, 0)))
}

func TestNextMarketOpenSkipsWeekend(t *testing.T) {
	friday := time.Date(2024, 3, 8, 16, 0, 0, 0, IndiaLocation)
	next := NextMarketOpen(friday)
	assert.Equal(t, time.Monday, next.Weekday())
	assert.Equal(t, 9, next.Hour())
	assert.Equal(t, 15, next.Minute())
}

func TestDescribeSession(t *testing.T) {
	saturday := time.Date(2024, 3, 9, 11, 0, 0, 0, IndiaLocation)
	assert.Equal(t, "CLOSED, opens Mon 11-Mar 09:15", DescribeSession(saturday))
	assert.Equal(t, "OPEN", DescribeSession(time.Date(2024, 3, 4, 10, 0, 0, 0, IndiaLocation)))
}
