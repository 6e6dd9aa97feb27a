package expr

import "time"

func daysToDuration(days int32) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func nanosToDuration(ns int64) time.Duration {
	return time.Duration(ns)
}
