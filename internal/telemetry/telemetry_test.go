package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

func scenarioSnapshot() model.SensorSnapshot {
	return model.SensorSnapshot{
		SoilTempC:       30,
		AirTempC:        20,
		HumidityPct:     50,
		SoilMoisturePct: 40,
		TakenAt:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Faults:          model.Faults(0).With(model.ChannelHumidity),
	}
}

func TestBuildPayload_ExactKeys(t *testing.T) {
	data, err := json.Marshal(BuildPayload(scenarioSnapshot()))
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))

	assert.Equal(t, map[string]any{
		"SoilTemp":     30.0,
		"AirTemp":      20.0,
		"Humidity":     50.0,
		"SoilMoisture": 40.0,
	}, got)
}

func TestReport_Success(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/nodeMCU-data", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("Data received successfully"))
	}))
	defer srv.Close()

	r := NewReporter(srv.URL+"/api/nodeMCU-data", time.Second, false)
	outcome := r.Report(context.Background(), scenarioSnapshot())

	assert.True(t, outcome.Success)
	assert.NoError(t, outcome.Err)
	assert.Equal(t, http.StatusCreated, outcome.StatusCode)
	assert.Equal(t, "Data received successfully", outcome.Body)
	assert.Equal(t, 40.0, received["SoilMoisture"])
}

func TestReport_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Error saving data to database", http.StatusInternalServerError)
	}))
	defer srv.Close()

	outcome := NewReporter(srv.URL, time.Second, false).Report(context.Background(), scenarioSnapshot())

	assert.False(t, outcome.Success)
	assert.Error(t, outcome.Err)
	assert.Equal(t, http.StatusInternalServerError, outcome.StatusCode)
	assert.Contains(t, outcome.Body, "Error saving data")
}

func TestReport_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	outcome := NewReporter(url, time.Second, false).Report(context.Background(), scenarioSnapshot())

	assert.False(t, outcome.Success)
	assert.Error(t, outcome.Err)
	assert.Zero(t, outcome.StatusCode)
}

func TestReport_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	outcome := NewReporter(srv.URL, 50*time.Millisecond, false).Report(context.Background(), scenarioSnapshot())

	assert.False(t, outcome.Success)
	assert.Error(t, outcome.Err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReport_InsecureSkipVerify(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	outcome := NewReporter(srv.URL, time.Second, false).Report(context.Background(), scenarioSnapshot())
	assert.False(t, outcome.Success, "self-signed certificate rejected by default")

	outcome = NewReporter(srv.URL, time.Second, true).Report(context.Background(), scenarioSnapshot())
	assert.True(t, outcome.Success)
}

type fakeToken struct {
	err error
}

func (t fakeToken) Wait() bool                     { return true }
func (t fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t fakeToken) Error() error { return t.err }

type fakePublisher struct {
	topics   []string
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload.([]byte))
	return fakeToken{err: p.err}
}

func TestMQTTMirror_PublishesReportedCycles(t *testing.T) {
	pub := &fakePublisher{}
	m := &MQTTMirror{client: pub, topic: "grow/telemetry"}

	require.NoError(t, m.ObserveCycle(context.Background(), model.CycleRecord{Snapshot: scenarioSnapshot()}))
	require.NoError(t, m.ObserveCycle(context.Background(), model.CycleRecord{Skipped: true, SkipReason: model.SkipDisconnected}))

	require.Len(t, pub.payloads, 1)
	assert.Equal(t, "grow/telemetry", pub.topics[0])
	assert.JSONEq(t, `{"SoilTemp":30,"AirTemp":20,"Humidity":50,"SoilMoisture":40}`, string(pub.payloads[0]))
}

func TestMQTTMirror_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	m := &MQTTMirror{client: pub, topic: "grow/telemetry"}

	err := m.ObserveCycle(context.Background(), model.CycleRecord{Snapshot: scenarioSnapshot()})
	assert.ErrorIs(t, err, pub.err)
}
