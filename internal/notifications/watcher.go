package notifications

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// Notifier interface for sending notifications
type Notifier interface {
	Send(title, message string) error
}

type ntfyNotifier struct{}

func (ntfyNotifier) Send(title, message string) error {
	return Send(title, message)
}

// FaultWatcher alerts on sensor channels that start or stop faulting and on
// runs of failed telemetry deliveries.
type FaultWatcher struct {
	notifier         Notifier
	failureThreshold int

	faulted             model.Faults
	consecutiveFailures int
	failureAlerted      bool
}

// NewFaultWatcher sends through ntfy. A failureThreshold of 0 disables
// delivery alerts.
func NewFaultWatcher(failureThreshold int) *FaultWatcher {
	return NewFaultWatcherWithNotifier(ntfyNotifier{}, failureThreshold)
}

func NewFaultWatcherWithNotifier(n Notifier, failureThreshold int) *FaultWatcher {
	return &FaultWatcher{notifier: n, failureThreshold: failureThreshold}
}

func (w *FaultWatcher) ObserveCycle(_ context.Context, rec model.CycleRecord) error {
	if rec.Skipped && rec.SkipReason == model.SkipDisconnected {
		return nil
	}

	w.checkSensors(rec.Snapshot.Faults)
	if !rec.Skipped {
		w.checkDelivery(rec.Outcome)
	}
	return nil
}

func (w *FaultWatcher) checkSensors(current model.Faults) {
	for _, c := range model.Channels {
		was, is := w.faulted.Has(c), current.Has(c)
		switch {
		case is && !was:
			w.send("Sensor fault", fmt.Sprintf("%s sensor is failing, readings are not trustworthy", c))
		case was && !is:
			w.send("Sensor recovered", fmt.Sprintf("%s sensor is reading normally again", c))
		}
	}
	w.faulted = current
}

func (w *FaultWatcher) checkDelivery(outcome model.DeliveryOutcome) {
	if outcome.Success {
		if w.failureAlerted {
			w.send("Telemetry recovered", "Collector is accepting telemetry again")
		}
		w.consecutiveFailures = 0
		w.failureAlerted = false
		return
	}

	w.consecutiveFailures++
	if w.failureThreshold > 0 && !w.failureAlerted && w.consecutiveFailures >= w.failureThreshold {
		msg := fmt.Sprintf("%d consecutive telemetry deliveries failed", w.consecutiveFailures)
		if outcome.Err != nil {
			msg += ": " + outcome.Err.Error()
		}
		w.send("Telemetry failing", msg)
		w.failureAlerted = true
	}
}

func (w *FaultWatcher) send(title, message string) {
	if err := w.notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}
