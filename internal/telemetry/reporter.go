package telemetry

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/grow-controller/internal/model"
)

// maxBodyBytes bounds how much of the collector's response is kept.
const maxBodyBytes = 64 << 10

// Payload is the collector wire format.
type Payload struct {
	SoilTemp     float64 `json:"SoilTemp"`
	AirTemp      float64 `json:"AirTemp"`
	Humidity     float64 `json:"Humidity"`
	SoilMoisture int     `json:"SoilMoisture"`
}

func BuildPayload(snap model.SensorSnapshot) Payload {
	return Payload{
		SoilTemp:     snap.SoilTempC,
		AirTemp:      snap.AirTempC,
		Humidity:     snap.HumidityPct,
		SoilMoisture: snap.SoilMoisturePct,
	}
}

// Reporter posts one snapshot per cycle to the collector.
type Reporter struct {
	endpoint string
	client   *http.Client
}

func NewReporter(endpoint string, timeout time.Duration, insecureSkipVerify bool) *Reporter {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Reporter{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// Report makes a single POST attempt. Any 2xx status is a success and the
// response body is returned in the outcome.
func (r *Reporter) Report(ctx context.Context, snap model.SensorSnapshot) model.DeliveryOutcome {
	body, err := json.Marshal(BuildPayload(snap))
	if err != nil {
		return model.DeliveryOutcome{Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return model.DeliveryOutcome{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", r.endpoint).Msg("Telemetry POST failed")
		return model.DeliveryOutcome{Err: fmt.Errorf("failed to post telemetry: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read collector response")
	}

	outcome := model.DeliveryOutcome{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		outcome.Err = fmt.Errorf("collector returned non-success status: %d", resp.StatusCode)
		log.Warn().Int("status", resp.StatusCode).Str("body", outcome.Body).Msg("Telemetry rejected")
		return outcome
	}

	outcome.Success = true
	log.Debug().Int("status", resp.StatusCode).Str("body", outcome.Body).Msg("Telemetry delivered")
	return outcome
}
