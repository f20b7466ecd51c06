package conf

import (
	"fmt"
	"sync"
	"time"
)

// All establishments share one civil calendar; cross-timezone sites are not supported.

var (
	locationCache = make(map[string]*time.Location)
	locationMutex sync.Mutex
)

func loadLocation(name string) (*time.Location, error) {
	locationMutex.Lock()
	defer locationMutex.Unlock()

	if loc, ok := locationCache[name]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	locationCache[name] = loc
	return loc, nil
}

// Location returns the configured civil timezone, falling back to UTC
// if the configured name cannot be resolved.
func (s *Settings) Location() *time.Location {
	if s.Main.Timezone == "" {
		return time.UTC
	}
	loc, err := loadLocation(s.Main.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ConvertUTCToLocal converts a UTC time to the configured local civil time.
func (s *Settings) ConvertUTCToLocal(t time.Time) time.Time {
	return t.In(s.Location())
}

// FormatLocalHour renders an instant as the local civil hour label used
// throughout the system, e.g. "2025-01-17 15:00".
func (s *Settings) FormatLocalHour(t time.Time) string {
	return t.In(s.Location()).Format("2006-01-02 15:00")
}

// ParseLocalHour parses a local civil hour label back into an instant.
func (s *Settings) ParseLocalHour(label string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02 15:00", label, s.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid hour label %q: %w", label, err)
	}
	return t, nil
}

// CurrentTargetHourUTC computes the UTC instant corresponding to the top of
// the current local hour. Wall-clock now is converted to local civil time,
// truncated to the hour, and converted back to UTC so the result is stable
// across DST and offset quirks.
func (s *Settings) CurrentTargetHourUTC(now time.Time) time.Time {
	local := now.In(s.Location())
	rounded := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, s.Location())
	return rounded.UTC()
}
