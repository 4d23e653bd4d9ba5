package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseRate parses strings such as "200/10s" or "5/1m" into an event limit and
// a window length in seconds.
func ParseRate(s string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate format: %s", s)
	}
	limit, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected rate format: %s", s)
	}

	timeStr := parts[1]
	if len(timeStr) < 2 {
		return 0, 0, fmt.Errorf("unexpected time format: %s", timeStr)
	}
	value, err := strconv.Atoi(timeStr[:len(timeStr)-1])
	if err != nil {
		return 0, 0, fmt.Errorf("unexpected time format: %s", timeStr)
	}
	switch timeStr[len(timeStr)-1] {
	case 's':
		return limit, value, nil
	case 'm':
		return limit, value * 60, nil
	case 'h':
		return limit, value * 3600, nil
	default:
		return 0, 0, fmt.Errorf("unexpected time unit: %s", timeStr[len(timeStr)-1:])
	}
}
