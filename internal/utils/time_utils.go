package utils

import (
	"strconv"
	"strings"
	"time"

	"github.com/streamhive/mqtt-session-store/internal/logger"
)

// ParseStringTime parses duration strings of the form "10s", "20m", "48h"
// or "2d" as used in config.json. Invalid input yields zero.
func ParseStringTime(timeString string) time.Duration {
	timeString = strings.ToLower(timeString)
	units := []struct {
		suffix string
		unit   time.Duration
	}{
		{"ms", time.Millisecond},
		{"s", time.Second},
		{"m", time.Minute},
		{"h", time.Hour},
		{"d", 24 * time.Hour},
	}
	for _, u := range units {
		if cutString, _, found := strings.Cut(timeString, u.suffix); found {
			number, err := strconv.Atoi(cutString)
			if err != nil {
				logger.ErrorF("Error parsing time string: %s", err.Error())
				return 0
			}
			return time.Duration(number) * u.unit
		}
	}
	logger.ErrorF("invalid time format: %s", timeString)
	return 0
}
