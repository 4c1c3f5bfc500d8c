package controlloop

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

var t0 = time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC)

type fakeReader struct {
	snap  model.SensorSnapshot
	calls int
}

func (f *fakeReader) Read(context.Context) model.SensorSnapshot {
	f.calls++
	return f.snap
}

type fakeDriver struct {
	mu       sync.Mutex
	commands []model.ActuatorCommand
}

func (f *fakeDriver) Apply(_ context.Context, cmd model.ActuatorCommand) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
}

type fakeReporter struct {
	outcome model.DeliveryOutcome
	sent    []model.SensorSnapshot
}

func (f *fakeReporter) Report(_ context.Context, snap model.SensorSnapshot) model.DeliveryOutcome {
	f.sent = append(f.sent, snap)
	return f.outcome
}

type fakeNetwork struct {
	state model.NetworkState
}

func (f *fakeNetwork) Status(context.Context) model.NetworkState { return f.state }

type fakeObserver struct {
	records []model.CycleRecord
	err     error
}

func (f *fakeObserver) ObserveCycle(_ context.Context, rec model.CycleRecord) error {
	f.records = append(f.records, rec)
	return f.err
}

type harness struct {
	loop     *Loop
	reader   *fakeReader
	driver   *fakeDriver
	reporter *fakeReporter
	network  *fakeNetwork
	observer *fakeObserver
	clock    time.Time
}

func newHarness(snap model.SensorSnapshot, suppress bool) *harness {
	h := &harness{
		reader:   &fakeReader{snap: snap},
		driver:   &fakeDriver{},
		reporter: &fakeReporter{outcome: model.DeliveryOutcome{Success: true, StatusCode: 201, Body: "Data received successfully"}},
		network:  &fakeNetwork{state: model.Connected},
		observer: &fakeObserver{},
		clock:    t0,
	}
	h.loop = New(Options{
		Reader:          h.reader,
		Driver:          h.driver,
		Reporter:        h.reporter,
		Network:         h.network,
		Thresholds:      model.DefaultThresholds(),
		Interval:        2 * time.Second,
		SuppressOnFault: suppress,
		Observers:       []Observer{h.observer},
	})
	h.loop.now = func() time.Time { return h.clock }
	h.loop.newID = func() string { return "cycle-1" }
	h.loop.timer = model.FertilizerTimer{LastFire: t0}
	return h
}

func scenario() model.SensorSnapshot {
	return model.SensorSnapshot{SoilTempC: 30, AirTempC: 20, HumidityPct: 50, SoilMoisturePct: 40, TakenAt: t0.Add(time.Minute)}
}

func TestRunCycle_Connected(t *testing.T) {
	h := newHarness(scenario(), false)

	rec := h.loop.RunCycle(context.Background())

	assert.False(t, rec.Skipped)
	assert.Equal(t, "cycle-1", rec.ID)
	assert.Equal(t, model.Connected, rec.Network)
	require.Len(t, h.driver.commands, 1)
	cmd := h.driver.commands[0]
	assert.True(t, cmd.WaterPump)
	assert.True(t, cmd.GrowLight)
	assert.True(t, cmd.Humidifier)
	assert.True(t, cmd.CoolingPulse.Requested())
	assert.False(t, cmd.FertilizerPulse.Requested())

	require.Len(t, h.reporter.sent, 1)
	assert.Equal(t, scenario(), h.reporter.sent[0])
	assert.True(t, rec.Outcome.Success)

	require.Len(t, h.observer.records, 1)
	assert.Equal(t, rec, h.observer.records[0])
}

func TestRunCycle_DisconnectedIsNoOp(t *testing.T) {
	h := newHarness(scenario(), false)
	h.network.state = model.Disconnected

	rec := h.loop.RunCycle(context.Background())

	assert.True(t, rec.Skipped)
	assert.Equal(t, model.SkipDisconnected, rec.SkipReason)
	assert.Zero(t, h.reader.calls)
	assert.Empty(t, h.driver.commands)
	assert.Empty(t, h.reporter.sent)
	assert.Len(t, h.observer.records, 1)
}

func TestRunCycle_TelemetryFailureDoesNotAffectActuation(t *testing.T) {
	h := newHarness(scenario(), false)
	h.reporter.outcome = model.DeliveryOutcome{Err: errors.New("connection refused")}

	rec := h.loop.RunCycle(context.Background())

	assert.False(t, rec.Outcome.Success)
	require.Len(t, h.driver.commands, 1)
	assert.True(t, h.driver.commands[0].WaterPump)
}

func TestRunCycle_SubstitutedSnapshotCompletes(t *testing.T) {
	snap := scenario()
	snap.HumidityPct = 59.3 // substituted by the reader
	snap.Faults = snap.Faults.With(model.ChannelHumidity)
	h := newHarness(snap, false)

	rec := h.loop.RunCycle(context.Background())

	assert.False(t, rec.Skipped)
	assert.False(t, math.IsNaN(rec.Snapshot.HumidityPct))
	assert.True(t, rec.Snapshot.Faults.Has(model.ChannelHumidity))
	assert.Len(t, h.driver.commands, 1)
	assert.Len(t, h.reporter.sent, 1)
}

func TestRunCycle_SuppressSkipsActuationAndReport(t *testing.T) {
	snap := scenario()
	snap.Faults = snap.Faults.With(model.ChannelSoilTemp)
	h := newHarness(snap, true)

	rec := h.loop.RunCycle(context.Background())

	assert.True(t, rec.Skipped)
	assert.Equal(t, model.SkipSensorFault, rec.SkipReason)
	require.Len(t, h.driver.commands, 1)
	assert.Equal(t, model.ActuatorCommand{}, h.driver.commands[0])
	assert.Empty(t, h.reporter.sent)
	assert.Equal(t, t0, h.loop.Timer().LastFire)
}

func TestRunCycle_SuppressTurnsRunningPumpOff(t *testing.T) {
	h := newHarness(scenario(), true)

	h.loop.RunCycle(context.Background())
	require.Len(t, h.driver.commands, 1)
	require.True(t, h.driver.commands[0].WaterPump)

	h.reader.snap.Faults = h.reader.snap.Faults.With(model.ChannelSoilMoisture)
	rec := h.loop.RunCycle(context.Background())

	assert.True(t, rec.Skipped)
	require.Len(t, h.driver.commands, 2)
	assert.False(t, h.driver.commands[1].WaterPump)
	assert.False(t, h.driver.commands[1].GrowLight)
	assert.False(t, h.driver.commands[1].Humidifier)
	assert.False(t, rec.Command.WaterPump)
	assert.Len(t, h.reporter.sent, 1)
}

func TestRunCycle_FertilizerTimerAdvances(t *testing.T) {
	snap := scenario()
	snap.TakenAt = t0.Add(24 * time.Hour)
	h := newHarness(snap, false)

	h.loop.RunCycle(context.Background())
	assert.True(t, h.driver.commands[0].FertilizerPulse.Requested())
	assert.Equal(t, snap.TakenAt, h.loop.Timer().LastFire)

	h.reader.snap.TakenAt = snap.TakenAt.Add(2 * time.Second)
	h.loop.RunCycle(context.Background())
	assert.False(t, h.driver.commands[1].FertilizerPulse.Requested())
}

func TestRunCycle_ObserverErrorIsAbsorbed(t *testing.T) {
	h := newHarness(scenario(), false)
	h.observer.err = errors.New("disk full")
	second := &fakeObserver{}
	h.loop.AddObserver(second)

	h.loop.RunCycle(context.Background())

	assert.Len(t, second.records, 1)
}

func TestRun_StopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newHarness(scenario(), false)
	h.loop.opts.Interval = 5 * time.Millisecond
	h.loop.sleep = sleepCtx

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		h.driver.mu.Lock()
		defer h.driver.mu.Unlock()
		return len(h.driver.commands) >= 2
	}, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop after cancel")
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	h := newHarness(scenario(), false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h.loop.Run(ctx)
	assert.Zero(t, h.reader.calls)
}
