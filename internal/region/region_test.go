package region

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldDeliverNationalAlwaysDelivers(t *testing.T) {
	assert.True(t, ShouldDeliver(true, "LOS ANGELES", []string{"CHICAGO"}))
}

func TestShouldDeliverNoTargetsDelivers(t *testing.T) {
	assert.True(t, ShouldDeliver(false, "LOS ANGELES", nil))
}

func TestShouldDeliverMatchingRegionCaseInsensitive(t *testing.T) {
	assert.True(t, ShouldDeliver(false, "chicago", []string{"Houston", "CHICAGO"}))
}

func TestShouldDeliverNonMatchingRegionDrops(t *testing.T) {
	// Scenario 6 from spec §8: LA peer, target [CHICAGO, HOUSTON].
	assert.False(t, ShouldDeliver(false, "LOS ANGELES", []string{"CHICAGO", "HOUSTON"}))
}

func TestDefaultRegistryKnownCities(t *testing.T) {
	r := NewDefaultRegistry()
	assert.True(t, r.Known("chicago"))
	assert.Equal(t, "Grant Park Evacuation Point", r.EvacuationLocation("Chicago"))
}

func TestRegistryUnknownRegionFallsBack(t *testing.T) {
	r := NewDefaultRegistry()
	assert.False(t, r.Known("ATLANTIS"))
	assert.Equal(t, fallbackEvacuation, r.EvacuationLocation("ATLANTIS"))
}

func TestRegistryAddRegistersNewRegion(t *testing.T) {
	r := NewDefaultRegistry()
	r.Add("seattle", "Key Arena Shelter")
	assert.True(t, r.Known("SEATTLE"))
	assert.Equal(t, "Key Arena Shelter", r.EvacuationLocation("seattle"))
}
