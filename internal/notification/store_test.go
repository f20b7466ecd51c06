package notification

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sysintegral/aerator-go/internal/aeration"
)

func TestStoreDrainEmptiesQueue(t *testing.T) {
	s := NewStore()
	s.Publish(aeration.DisableEvent{SiloID: 1, SiloName: "Silo A", Reason: "stale"})
	s.Publish(aeration.DisableEvent{SiloID: 2, SiloName: "Silo B", Reason: "stale"})

	events := s.Drain()
	assert.Len(t, events, 2)
	assert.Equal(t, uint(1), events[0].SiloID)
	assert.Equal(t, uint(2), events[1].SiloID)

	assert.Empty(t, s.Drain())
	assert.Equal(t, 0, s.Pending())
}

func TestStoreDropsOldestWhenFull(t *testing.T) {
	s := NewStore()
	for i := 0; i < maxBuffered+5; i++ {
		s.Publish(aeration.DisableEvent{SiloID: uint(i + 1), SiloName: fmt.Sprintf("Silo %d", i+1)})
	}

	events := s.Drain()
	assert.Len(t, events, maxBuffered)
	assert.Equal(t, uint(6), events[0].SiloID, "oldest events should have been dropped")
}
