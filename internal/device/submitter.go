package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// HTTPSubmitter posts triggers to the coordinator's alert endpoint.
type HTTPSubmitter struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSubmitter(baseURL string) *HTTPSubmitter {
	return &HTTPSubmitter{
		BaseURL: baseURL,
		Client:  &http.Client{},
	}
}

func (s *HTTPSubmitter) SubmitTrigger(ctx context.Context, t *models.TriggerEvent) (string, error) {
	body, err := json.Marshal(map[string]any{
		"userId":     t.UserID,
		"type":       t.Reason.EmergencyType(),
		"reason":     t.Reason,
		"priority":   t.Severity,
		"location":   t.Location,
		"sensorData": t.Sample,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling trigger: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+"/emergency/alert", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data struct {
		Emergency struct {
			ID string `json:"id"`
		} `json:"emergency"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", fmt.Errorf("error decoding resp.Body: %w", err)
	}
	return data.Emergency.ID, nil
}

func (s *HTTPSubmitter) SubmitResolution(ctx context.Context, emergencyID string) error {
	body, err := json.Marshal(map[string]string{
		"status": string(models.StatusResolved),
		"notes":  "cancelled by user on device",
	})
	if err != nil {
		return fmt.Errorf("error marshaling resolution: %w", err)
	}

	url := fmt.Sprintf("%s/emergency/%s/status", s.BaseURL, emergencyID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}
	return nil
}

// LogTextSender stands in for the cellular control channel; it logs the
// free-text message a modem would transmit.
type LogTextSender struct{}

func (LogTextSender) SendText(_ context.Context, phone, message string) error {
	slog.Info("fallback text sent", "phone", phone, "message", message)
	return nil
}
