package service

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestTrackingGenerator_MonotonicWithFrozenClock(t *testing.T) {
	frozen := time.UnixMilli(1_700_000_000_000)
	g := &TrackingGenerator{now: func() time.Time { return frozen }}

	var prev int64
	for i := 0; i < 50; i++ {
		number := g.Next()
		if !strings.HasPrefix(number, TrackingPrefix) {
			t.Fatalf("tracking number %q has no %q prefix", number, TrackingPrefix)
		}
		parts := strings.Split(strings.TrimPrefix(number, TrackingPrefix), "-")
		if len(parts) != 2 || len(parts[1]) != 3 {
			t.Fatalf("tracking number %q is malformed", number)
		}
		ms, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			t.Fatalf("parse millis of %q: %v", number, err)
		}
		if ms <= prev {
			t.Fatalf("millis %d did not grow after %d", ms, prev)
		}
		prev = ms
	}
}
