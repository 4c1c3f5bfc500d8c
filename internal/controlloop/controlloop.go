package controlloop

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
	"github.com/thatsimonsguy/grow-controller/internal/policy"
)

type SensorReader interface {
	Read(ctx context.Context) model.SensorSnapshot
}

type Driver interface {
	Apply(ctx context.Context, cmd model.ActuatorCommand)
}

type Reporter interface {
	Report(ctx context.Context, snap model.SensorSnapshot) model.DeliveryOutcome
}

type NetworkStatus interface {
	Status(ctx context.Context) model.NetworkState
}

// Observer receives every finished cycle, in registration order. Observers
// never influence control decisions.
type Observer interface {
	ObserveCycle(ctx context.Context, rec model.CycleRecord) error
}

type Options struct {
	Reader     SensorReader
	Driver     Driver
	Reporter   Reporter
	Network    NetworkStatus
	Thresholds model.Thresholds
	Interval   time.Duration

	// SuppressOnFault drives every sustained output off and skips reporting
	// for any cycle whose snapshot has a faulted channel.
	SuppressOnFault bool

	Observers []Observer
}

// Loop owns the fertilizer timer and the last commanded levels. It is
// driven by a single goroutine.
type Loop struct {
	opts  Options
	timer model.FertilizerTimer
	prev  model.ActuatorCommand

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

func New(opts Options) *Loop {
	l := &Loop{
		opts:  opts,
		now:   time.Now,
		sleep: sleepCtx,
		newID: func() string { return uuid.NewString() },
	}
	l.timer = model.FertilizerTimer{LastFire: l.now()}
	return l
}

func (l *Loop) AddObserver(o Observer) {
	l.opts.Observers = append(l.opts.Observers, o)
}

func (l *Loop) Timer() model.FertilizerTimer {
	return l.timer
}

// Run executes cycles back to back, sleeping the configured interval
// between them, until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	log.Info().Dur("interval", l.opts.Interval).Msg("Starting control loop")

	for {
		if ctx.Err() != nil {
			break
		}
		l.RunCycle(ctx)
		if err := l.sleep(ctx, l.opts.Interval); err != nil {
			break
		}
	}

	log.Info().Msg("Control loop stopped")
}

// RunCycle performs one status, read, decide, actuate, report pass and
// notifies observers.
func (l *Loop) RunCycle(ctx context.Context) model.CycleRecord {
	rec := model.CycleRecord{
		ID:        l.newID(),
		StartedAt: l.now(),
		Network:   l.opts.Network.Status(ctx),
	}

	switch {
	case rec.Network != model.Connected:
		rec.Skipped = true
		rec.SkipReason = model.SkipDisconnected
		log.Warn().Str("cycle", rec.ID).Msg("Network disconnected, skipping cycle")
	default:
		l.connectedCycle(ctx, &rec)
	}

	rec.Duration = l.now().Sub(rec.StartedAt)
	l.notify(ctx, rec)
	return rec
}

func (l *Loop) connectedCycle(ctx context.Context, rec *model.CycleRecord) {
	snap := l.opts.Reader.Read(ctx)
	rec.Snapshot = snap

	if l.opts.SuppressOnFault && snap.Faults.Any() {
		rec.Skipped = true
		rec.SkipReason = model.SkipSensorFault
		log.Warn().Str("cycle", rec.ID).Strs("faults", faultNames(snap.Faults)).Msg("Sensor fault, driving outputs off and skipping report")
		off := model.ActuatorCommand{}
		l.opts.Driver.Apply(ctx, off)
		l.prev = off
		rec.Command = off
		return
	}

	cmd, timer := policy.Decide(snap, l.opts.Thresholds, l.timer, l.prev, snap.TakenAt)
	if timer.LastFire.Before(l.timer.LastFire) {
		log.Warn().Time("last_fire", l.timer.LastFire).Time("now", snap.TakenAt).Msg("Clock moved backwards, fertilizer timer re-armed")
	}
	l.timer = timer
	rec.Command = cmd

	l.opts.Driver.Apply(ctx, cmd)
	l.prev = cmd

	rec.Outcome = l.opts.Reporter.Report(ctx, snap)

	log.Info().
		Str("cycle", rec.ID).
		Float64("soil_temp_c", snap.SoilTempC).
		Float64("air_temp_c", snap.AirTempC).
		Float64("humidity_pct", snap.HumidityPct).
		Int("soil_moisture_pct", snap.SoilMoisturePct).
		Bool("water_pump", cmd.WaterPump).
		Bool("grow_light", cmd.GrowLight).
		Bool("humidifier", cmd.Humidifier).
		Bool("fertilizer", cmd.FertilizerPulse.Requested()).
		Bool("cooling", cmd.CoolingPulse.Requested()).
		Bool("delivered", rec.Outcome.Success).
		Msg("Cycle complete")
}

func (l *Loop) notify(ctx context.Context, rec model.CycleRecord) {
	for _, o := range l.opts.Observers {
		if err := o.ObserveCycle(ctx, rec); err != nil {
			log.Warn().Err(err).Str("cycle", rec.ID).Msg("Cycle observer failed")
		}
	}
}

func faultNames(f model.Faults) []string {
	var names []string
	for _, c := range f.Channels() {
		names = append(names, string(c))
	}
	return names
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

