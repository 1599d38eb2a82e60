package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	gocache "github.com/patrickmn/go-cache"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// Request mirrors the advisory service's analyze-emergency contract.
type Request struct {
	SensorData *models.SensorSample `json:"sensorData"`
	Type       models.EmergencyType `json:"type"`
	Location   models.Location      `json:"location"`
}

type response struct {
	AccidentProbability float64  `json:"accidentProbability"`
	RiskFactors         []string `json:"riskFactors"`
	RecommendedAction   string   `json:"recommendedAction"`
}

// Client consults the external accident-probability service. It is
// strictly best-effort: any timeout, transport or decode failure yields
// the deterministic fallback advisory instead of an error, so emergency
// creation is never blocked on the oracle.
type Client struct {
	cfg    config.OracleConfig
	client *http.Client
	cache  *gocache.Cache
}

func NewClient(cfg config.OracleConfig) *Client {
	return &Client{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		cache: gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
	}
}

// Analyze returns an advisory for the request, memoized by key for the
// configured TTL so a merged trigger does not re-consult the service.
func (c *Client) Analyze(ctx context.Context, key string, req Request) models.Advisory {
	if cached, ok := c.cache.Get(key); ok {
		return cached.(models.Advisory)
	}

	adv, err := c.call(ctx, req)
	if err != nil {
		slog.Warn("advisory oracle unavailable, using fallback", "error", err, "type", req.Type)
		adv = Fallback(req.Type)
	}

	c.cache.Set(key, adv, gocache.DefaultExpiration)
	return adv
}

func (c *Client) call(ctx context.Context, req Request) (models.Advisory, error) {
	if !c.cfg.Enabled {
		return models.Advisory{}, fmt.Errorf("oracle disabled")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return models.Advisory{}, fmt.Errorf("error marshaling oracle request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return models.Advisory{}, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return models.Advisory{}, fmt.Errorf("error while doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Advisory{}, fmt.Errorf("unexpected status code: %d - status: %s", resp.StatusCode, resp.Status)
	}

	var data response
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.Advisory{}, fmt.Errorf("error decoding resp.Body: %w", err)
	}

	return models.Advisory{
		AccidentProbability: data.AccidentProbability,
		RiskFactors:         data.RiskFactors,
		RecommendedAction:   data.RecommendedAction,
	}, nil
}

// Fallback is the deterministic advisory used whenever the oracle cannot
// be reached.
func Fallback(t models.EmergencyType) models.Advisory {
	probability := 0.5
	if t == models.EmergencyTypeAccident {
		probability = 0.8
	}
	return models.Advisory{
		AccidentProbability: probability,
		RiskFactors:         []string{"Unknown"},
		RecommendedAction:   "Immediate response required",
		Fallback:            true,
	}
}
