package core

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Duration is a time.Duration that reads either Go syntax ("48h") or
// interval syntax ("2 days 4 hours") from JSON and YAML, and persists as
// whole seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseInterval(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Value() (driver.Value, error) {
	return int64(time.Duration(d) / time.Second), nil
}

func (d *Duration) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = 0
	case int64:
		*d = Duration(time.Duration(v) * time.Second)
	case float64:
		*d = Duration(time.Duration(v) * time.Second)
	case []byte:
		return d.Scan(string(v))
	case string:
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("scan duration %q: %w", v, err)
		}
		*d = Duration(time.Duration(secs) * time.Second)
	default:
		return fmt.Errorf("scan duration: unsupported type %T", src)
	}
	return nil
}

var intervalPattern = regexp.MustCompile(`(?i)(-?\d+(?:\.\d*)?)\s*(days?|d|hours?|h|minutes?|mins?|m|seconds?|secs?|s|ms|milliseconds?)\b`)

// ParseInterval converts "90m", "1h30m", "2 days", "4 hours 30 minutes" into a duration.
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(interval); err == nil {
		return d, nil
	}

	matches := intervalPattern.FindAllStringSubmatch(interval, -1)
	if matches == nil {
		return 0, fmt.Errorf("invalid interval format: %s", interval)
	}

	var total time.Duration
	for _, m := range matches {
		valueStr, unit := m[1], strings.ToLower(m[2])
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in interval: %s", valueStr)
		}

		switch unit {
		case "day", "days", "d":
			total += time.Duration(value * float64(24*time.Hour))
		case "hour", "hours", "h":
			total += time.Duration(value * float64(time.Hour))
		case "minute", "minutes", "min", "mins", "m":
			total += time.Duration(value * float64(time.Minute))
		case "second", "seconds", "sec", "secs", "s":
			total += time.Duration(value * float64(time.Second))
		case "ms", "millisecond", "milliseconds":
			total += time.Duration(value * float64(time.Millisecond))
		default:
			return 0, fmt.Errorf("unknown unit in interval: %s", unit)
		}
	}
	return total, nil
}
