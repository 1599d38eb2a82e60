package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/karanvs/go-emergency-dispatch/internal/config"
	"github.com/karanvs/go-emergency-dispatch/internal/detector"
	"github.com/karanvs/go-emergency-dispatch/internal/device"
	"github.com/karanvs/go-emergency-dispatch/internal/logging"
	"github.com/karanvs/go-emergency-dispatch/internal/models"
)

// simSource fakes a benign drive so the agent can run without hardware.
type simSource struct {
	speed float64
}

func (s *simSource) Read() (*models.SensorSample, error) {
	s.speed += rand.Float64()*4 - 2
	if s.speed < 0 {
		s.speed = 0
	}
	return &models.SensorSample{
		Timestamp:   time.Now(),
		AccelX:      rand.NormFloat64() * 0.5,
		AccelY:      rand.NormFloat64() * 0.5,
		AccelZ:      -1 + rand.NormFloat64()*0.05,
		GyroX:       rand.NormFloat64() * 0.2,
		GyroY:       rand.NormFloat64() * 0.2,
		GyroZ:       rand.NormFloat64() * 0.2,
		HeartRate:   75 + rand.NormFloat64()*5,
		OxygenLevel: 98 + rand.NormFloat64(),
		Speed:       s.speed,
		HasMotion:   true,
		HasVitals:   true,
		HasSpeed:    true,
	}, nil
}

type fixedLocation struct {
	loc models.Location
}

func (f fixedLocation) Location() models.Location {
	return f.loc
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logging.Setup(cfg.Logging.Level)
	log := logging.Component("fieldunit")

	serverURL := os.Getenv("COORDINATOR_URL")
	if serverURL == "" {
		serverURL = "http://localhost:8080"
	}
	userID := os.Getenv("DEVICE_USER_ID")
	if userID == "" {
		userID = "fieldunit-1"
	}

	det := detector.New(cfg.Detector, userID)
	agent := device.NewAgent(
		cfg.Detector,
		det,
		&simSource{speed: 40},
		fixedLocation{loc: models.Location{Latitude: 28.6139, Longitude: 77.2090}},
		device.NewHTTPSubmitter(serverURL),
		device.LogTextSender{},
		[]models.Contact{{ID: "contact-1", Name: "Primary contact", Phone: "+10000000000"}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	agent.Start(ctx)
	log.Info("field unit running", "coordinator", serverURL, "user", userID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	agent.Stop()
	log.Info("field unit stopped")
}
