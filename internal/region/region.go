// Package region owns the region registry (city name to evacuation
// location) and the delivery rule that decides whether an inbound alert is
// relevant to a local peer.
package region

import "strings"

// City describes one predefined delivery region.
type City struct {
	Name             string
	EvacuationLocation string
}

// defaultCities is the predefined set of cities carried over from the
// original disaster simulator; additional regions can be registered at
// startup via Registry.Add without touching this table.
var defaultCities = []City{
	{Name: "NEW YORK", EvacuationLocation: "Central Park Evacuation Zone"},
	{Name: "LOS ANGELES", EvacuationLocation: "Dodger Stadium Emergency Center"},
	{Name: "CHICAGO", EvacuationLocation: "Grant Park Evacuation Point"},
	{Name: "HOUSTON", EvacuationLocation: "NRG Stadium Emergency Shelter"},
	{Name: "PHOENIX", EvacuationLocation: "Arizona Veterans Memorial Coliseum"},
}

const fallbackEvacuation = "Local Emergency Shelter"

// Registry maps an uppercased region name to its evacuation location.
type Registry struct {
	cities map[string]string
}

// NewDefaultRegistry returns a Registry pre-populated with the predefined
// city list.
func NewDefaultRegistry() *Registry {
	r := &Registry{cities: make(map[string]string, len(defaultCities))}
	for _, c := range defaultCities {
		r.cities[strings.ToUpper(c.Name)] = c.EvacuationLocation
	}
	return r
}

// Add registers (or overrides) a region's evacuation location.
func (r *Registry) Add(name, evacuation string) {
	r.cities[strings.ToUpper(name)] = evacuation
}

// EvacuationLocation returns the evacuation location for a region, or the
// fallback shelter string if the region is unknown.
func (r *Registry) EvacuationLocation(name string) string {
	if loc, ok := r.cities[strings.ToUpper(name)]; ok {
		return loc
	}
	return fallbackEvacuation
}

// Known reports whether name is a registered region.
func (r *Registry) Known(name string) bool {
	_, ok := r.cities[strings.ToUpper(name)]
	return ok
}

// Names returns every registered region name, uppercased.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.cities))
	for name := range r.cities {
		out = append(out, name)
	}
	return out
}

// ShouldDeliver implements the delivery rule of spec §4.5: deliver iff the
// message is national, or carries no target list, or the local region
// (case-insensitive) appears in the target list.
func ShouldDeliver(isNational bool, localRegion string, targetRegions []string) bool {
	if isNational {
		return true
	}
	if len(targetRegions) == 0 {
		return true
	}
	local := strings.ToUpper(localRegion)
	for _, t := range targetRegions {
		if strings.ToUpper(t) == local {
			return true
		}
	}
	return false
}
