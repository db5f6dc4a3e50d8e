package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/sincronizacion-distribuida/alertmesh/internal/clock"
	"github.com/sincronizacion-distribuida/alertmesh/internal/message"
	"github.com/sincronizacion-distribuida/alertmesh/internal/region"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSender struct {
	sent []message.Message
}

func (f *fakeSender) Broadcast(msg message.Message) {
	f.sent = append(f.sent, msg)
}

func TestSendDisasterRegionalTargetsPassThrough(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	o.SendDisaster("FLOOD", "", []string{"CHICAGO"}, "")

	require.Len(t, fs.sent, 1)
	assert.Equal(t, message.KindDisaster, fs.sent[0].Kind)
	assert.Equal(t, []string{"CHICAGO"}, fs.sent[0].TargetRegions)
	assert.Contains(t, fs.sent[0].Tips, "Move to higher ground immediately")
}

func TestSendDisasterNationalIgnoresTargets(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	o.SendDisaster("NUCLEAR", "", []string{"CHICAGO"}, "")

	require.Len(t, fs.sent, 1)
	assert.Equal(t, message.KindNational, fs.sent[0].Kind)
	assert.Nil(t, fs.sent[0].TargetRegions)
}

func TestSendDisasterUnknownTypeIsNoOp(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	o.SendDisaster("METEOR", "", nil, "")

	assert.Empty(t, fs.sent)
}

func TestSendDisasterUsesProvidedSeverity(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	o.SendDisaster("EARTHQUAKE", "", nil, "EXTREME")

	require.Len(t, fs.sent, 1)
	assert.Equal(t, "EXTREME", fs.sent[0].Severity)
}

func TestBroadcastAlertTicksClock(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	before := clk.Read()
	o.BroadcastAlert("road closed downtown", nil)

	require.Len(t, fs.sent, 1)
	assert.Greater(t, fs.sent[0].LamportTime, before)
}

func TestPickWeightedFavorsRegionalOverNational(t *testing.T) {
	nationalHits := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		if pickWeighted(Catalog).National {
			nationalHits++
		}
	}
	// With weight 0.3 for 3 national entries against weight 1 for 7
	// regional entries, national should land well under half the draws.
	assert.Less(t, nationalHits, trials/2)
}

func TestAutoEmitterStopsCleanly(t *testing.T) {
	fs := &fakeSender{}
	clk := clock.New()
	o := New(6001, "CHICAGO", region.NewDefaultRegistry(), fs, clk, nil)

	o.StartAutoEmitter()
	// Give the background goroutine a moment to enter its select before
	// stopping it, so Stop exercises the running, not the not-yet-started,
	// path.
	time.Sleep(10 * time.Millisecond)
	o.Stop()
}

func TestByNameIsCaseInsensitive(t *testing.T) {
	dt, ok := byName("earthquake")
	require.True(t, ok)
	assert.Equal(t, "EARTHQUAKE", dt.Name)

	_, ok = byName("not-a-disaster")
	assert.False(t, ok)
}
