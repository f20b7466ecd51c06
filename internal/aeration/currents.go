package aeration

import "sync"

// CurrentStore holds the latest reported amperage per current sensor. Values
// arrive over the ingest endpoint and are read by the schedule projector, so
// the store never touches the database.
type CurrentStore struct {
	mu     sync.RWMutex
	values map[string]float64
}

func NewCurrentStore() *CurrentStore {
	return &CurrentStore{values: make(map[string]float64)}
}

// Set records the latest amperage for a sensor.
func (s *CurrentStore) Set(sensorID string, amps float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[sensorID] = amps
}

// Get returns the latest amperage for a sensor, if one has been reported.
func (s *CurrentStore) Get(sensorID string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	amps, ok := s.values[sensorID]
	return amps, ok
}
