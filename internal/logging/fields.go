package logging

import (
	"strconv"

	"go.uber.org/zap"
)

// RedactedString logs only the length of val.
func RedactedString(key, val string) zap.Field {
	return zap.String(key, "[REDACTED:"+strconv.Itoa(len(val))+"]")
}

// Truncated logs at most max bytes of val, noting how much was cut.
func Truncated(key, val string, max int) zap.Field {
	if max <= 0 || len(val) <= max {
		return zap.String(key, val)
	}
	return zap.String(key, val[:max]+"…["+strconv.Itoa(len(val)-max)+" bytes truncated]")
}
