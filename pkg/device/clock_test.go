package device

import (
	"testing"
	"time"
)

func TestSystemClock(t *testing.T) {
	t.Run("unset at boot", func(t *testing.T) {
		clock := NewSystemClock()
		if _, set := clock.Now(); set {
			t.Error("fresh clock reports set")
		}
	})

	t.Run("advances after set", func(t *testing.T) {
		clock := NewSystemClock()
		base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
		clock.Set(base)

		now, set := clock.Now()
		if !set {
			t.Fatal("clock not set")
		}
		if now.Before(base) || now.Sub(base) > time.Minute {
			t.Errorf("Now() = %v, want shortly after %v", now, base)
		}

		time.Sleep(10 * time.Millisecond)
		later, _ := clock.Now()
		if !later.After(now) {
			t.Error("clock did not advance")
		}
	})

	t.Run("reset re-anchors", func(t *testing.T) {
		clock := NewSystemClock()
		clock.Set(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
		rewound := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
		clock.Set(rewound)

		now, _ := clock.Now()
		if now.Year() != 2020 {
			t.Errorf("Now() = %v after rewind", now)
		}
	})
}
