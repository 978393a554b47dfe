package comparables

import "time"

func now() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
