// Package alert composes region-targeted and national disaster alerts and
// optionally drives a background emitter that produces randomized
// disasters at intervals, per spec §4.7.
package alert

import (
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
	"github.com/sincronizacion-distribuida/alertmesh/internal/region"
)

// DisasterType describes one catalog entry: its possible severities and
// advisory tip templates. A "{evac}" placeholder in a tip is substituted
// with the receiving peer's evacuation location before display — the
// originator leaves the placeholder intact, since substitution is local to
// each recipient.
type DisasterType struct {
	Name       string
	National   bool
	Severities []string
	Tips       []string
}

// Catalog is the predefined disaster table carried over from the original
// simulator (original_source/disaster.py's DISASTERS/NATIONAL_DISASTERS).
var Catalog = []DisasterType{
	{Name: "EARTHQUAKE", Severities: []string{"MODERATE", "HIGH", "CRITICAL", "EXTREME"}, Tips: []string{
		"DROP, COVER, and HOLD ON immediately",
		"Stay away from windows and heavy furniture",
		"If outdoors, move away from buildings and power lines",
		"After shaking stops, evacuate to: {evac}",
	}},
	{Name: "TSUNAMI", Severities: []string{"HIGH", "CRITICAL", "EXTREME"}, Tips: []string{
		"EVACUATE IMMEDIATELY to higher ground",
		"Do NOT wait for official warning",
		"Move at least 2 miles inland or 100 feet above sea level",
		"Emergency shelter location: {evac}",
	}},
	{Name: "FLOOD", Severities: []string{"LOW", "MODERATE", "HIGH", "CRITICAL"}, Tips: []string{
		"Move to higher ground immediately",
		"Do NOT walk or drive through flood waters",
		"Turn off utilities at main switches",
		"Report to evacuation center: {evac}",
	}},
	{Name: "WILDFIRE", Severities: []string{"MODERATE", "HIGH", "CRITICAL", "EXTREME"}, Tips: []string{
		"Evacuate immediately if ordered",
		"Close all windows and doors",
		"Wear N95 mask or wet cloth over nose/mouth",
		"Evacuation point: {evac}",
	}},
	{Name: "TORNADO", Severities: []string{"MODERATE", "HIGH", "CRITICAL", "EXTREME"}, Tips: []string{
		"Seek shelter in basement or interior room",
		"Stay away from windows",
		"Cover yourself with mattress or heavy blankets",
		"After tornado passes, go to: {evac}",
	}},
	{Name: "HURRICANE", Severities: []string{"LOW", "MODERATE", "HIGH", "CRITICAL", "EXTREME"}, Tips: []string{
		"Board up windows and secure outdoor items",
		"Fill bathtubs with water for emergency use",
		"Charge all electronic devices",
		"Emergency shelter: {evac}",
	}},
	{Name: "HAZMAT", Severities: []string{"MODERATE", "HIGH", "CRITICAL"}, Tips: []string{
		"Stay indoors and seal all windows/doors",
		"Turn off ventilation systems",
		"Listen to emergency broadcasts",
		"If ordered to evacuate, go to: {evac}",
	}},
	{Name: "NUCLEAR", National: true, Severities: []string{"NATIONAL EMERGENCY"}, Tips: []string{
		"Seek shelter in basement or center of building",
		"Remove contaminated clothing if outside",
		"Do NOT use phones - keep lines clear",
		"Await further government instructions",
	}},
	{Name: "WAR", National: true, Severities: []string{"NATIONAL EMERGENCY"}, Tips: []string{
		"Follow official emergency broadcast instructions",
		"Avoid large public gatherings",
	}},
	{Name: "BIOTERRORISM", National: true, Severities: []string{"NATIONAL EMERGENCY"}, Tips: []string{
		"Shelter in place until instructed otherwise",
		"Avoid contact with unidentified substances",
	}},
}

func byName(name string) (DisasterType, bool) {
	for _, d := range Catalog {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return DisasterType{}, false
}

// Sender is the outbound half the originator needs: broadcast an alert
// (optionally to a subset of regions) or broadcast unconditionally for
// national alerts. Both are the same call; TargetRegions nil/empty means
// every peer, matching spec §4.5's delivery rule.
type Sender interface {
	Broadcast(msg message.Message)
}

// Originator composes and emits alerts on behalf of one peer.
type Originator struct {
	SelfPort   int
	SelfRegion string
	Regions    *region.Registry
	Sender     Sender
	Clock      interface{ Tick() int64 }
	Log        *logrus.Entry

	stop chan struct{}
}

// New returns an Originator bound to the given peer identity.
func New(selfPort int, selfRegion string, regions *region.Registry, sender Sender, clk interface{ Tick() int64 }, log *logrus.Entry) *Originator {
	return &Originator{
		SelfPort:   selfPort,
		SelfRegion: selfRegion,
		Regions:    regions,
		Sender:     sender,
		Clock:      clk,
		Log:        log,
	}
}

// SendDisaster composes and broadcasts a structured disaster alert. National
// disaster types ignore targetRegions and reach every peer (spec §4.7).
func (o *Originator) SendDisaster(disasterType, content string, targetRegions []string, severity string) {
	dt, ok := byName(disasterType)
	if !ok {
		if o.Log != nil {
			o.Log.WithField("disaster_type", disasterType).Warn("unknown disaster type")
		}
		return
	}

	if severity == "" {
		severity = dt.Severities[rand.Intn(len(dt.Severities))]
	}

	kind := message.KindDisaster
	targets := targetRegions
	if dt.National {
		kind = message.KindNational
		targets = nil
	}

	if content == "" {
		content = strings.ToUpper(dt.Name) + " detected in " + o.SelfRegion
	}

	msg := message.Message{
		Kind:          kind,
		SenderPort:    o.SelfPort,
		SenderRegion:  o.SelfRegion,
		LamportTime:   o.Clock.Tick(),
		Content:       content,
		TargetRegions: targets,
		DisasterType:  dt.Name,
		Severity:      severity,
		Tips:          dt.Tips,
	}
	o.Sender.Broadcast(msg)
}

// BroadcastAlert sends a free-form custom alert, optionally targeted.
func (o *Originator) BroadcastAlert(content string, targetRegions []string) {
	msg := message.Message{
		Kind:          message.KindAlert,
		SenderPort:    o.SelfPort,
		SenderRegion:  o.SelfRegion,
		LamportTime:   o.Clock.Tick(),
		Content:       content,
		TargetRegions: targetRegions,
	}
	o.Sender.Broadcast(msg)
}

// StartAutoEmitter launches a background goroutine that emits a random
// disaster every 5-15 seconds, weighting national disasters at ~0.3
// relative to regional ones (spec §4.7). Call Stop to terminate it.
func (o *Originator) StartAutoEmitter() {
	o.stop = make(chan struct{})
	go o.autoEmitLoop(o.stop)
}

// Stop terminates a running auto-emitter; a no-op if none is running.
func (o *Originator) Stop() {
	if o.stop != nil {
		close(o.stop)
		o.stop = nil
	}
}

func (o *Originator) autoEmitLoop(stop chan struct{}) {
	for {
		wait := time.Duration(5+rand.Intn(11)) * time.Second
		select {
		case <-stop:
			return
		case <-time.After(wait):
		}

		dt := pickWeighted(Catalog)
		var targets []string
		if !dt.National {
			targets = pickRegions(o.Regions, 1+rand.Intn(3))
		}
		o.SendDisaster(dt.Name, "", targets, "")
	}
}

// pickWeighted chooses a random catalog entry, weighting national entries
// at 0.3 relative to regional entries (weight 1).
func pickWeighted(catalog []DisasterType) DisasterType {
	total := 0.0
	weights := make([]float64, len(catalog))
	for i, d := range catalog {
		w := 1.0
		if d.National {
			w = 0.3
		}
		weights[i] = w
		total += w
	}

	r := rand.Float64() * total
	for i, w := range weights {
		if r < w {
			return catalog[i]
		}
		r -= w
	}
	return catalog[len(catalog)-1]
}

func pickRegions(registry *region.Registry, n int) []string {
	if registry == nil {
		return nil
	}
	all := registry.Names()
	if n > len(all) {
		n = len(all)
	}
	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:n]
}
