package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Surface turns driver calls into the sentences the assistant reads back.
// It never returns errors; every failure becomes text.
type Surface struct {
	light  LightDriver
	sensor Sensor
	logger *slog.Logger

	mu    sync.Mutex
	state string
}

// NewSurface creates a surface over the given devices.
func NewSurface(light LightDriver, sensor Sensor, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		light:  light,
		sensor: sensor,
		logger: logger.With("component", "hardware"),
		state:  "off",
	}
}

// LightState returns the last state that was requested successfully.
func (s *Surface) LightState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetLight switches the light and checks the pin followed.
func (s *Surface) SetLight(_ context.Context, status string) string {
	status = strings.ToLower(status)

	var on bool
	switch status {
	case "on":
		on = true
	case "off":
	default:
		msg := fmt.Sprintf("Error: Invalid status '%s'. Use 'on' or 'off'.", status)
		s.logger.Error("invalid light status", "status", status)
		return msg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.light.Set(on); err != nil {
		s.logger.Error("light driver failed", "status", status, "error", err)
		return fmt.Sprintf("Error: Failed to turn %s the light.", status)
	}
	lit, err := s.light.IsLit()
	if err != nil || lit != on {
		s.logger.Error("light did not follow", "status", status, "lit", lit, "error", err)
		return fmt.Sprintf("Error: Failed to turn %s the light.", status)
	}

	s.state = status
	s.logger.Info("light switched", "status", status)
	return fmt.Sprintf("The light has been turned %s successfully.", status)
}

// ReadEnvironment samples the sensor.
func (s *Surface) ReadEnvironment(ctx context.Context, location string) string {
	if location == "" {
		location = "indoor"
	}
	r, err := s.sensor.Read(ctx)
	if err != nil {
		s.logger.Error("sensor read failed", "location", location, "error", err)
		return "Error: Failed to read from the sensor."
	}
	s.logger.Info("sensor read", "location", location, "temperature_c", r.TemperatureC, "humidity", r.Humidity)
	return fmt.Sprintf("Temperature is %.1f°C and Humidity is %.1f%%.", r.TemperatureC, r.Humidity)
}
