// Package hardware provides the light and environment sensor surface.
//
// Drivers are kept behind small interfaces so the surface can run against
// real pins on a board or against the simulated devices on a laptop.
package hardware

import "context"

// LightDriver switches a single output pin.
type LightDriver interface {
	Set(on bool) error
	IsLit() (bool, error)
}

// Reading is one sample from an environment sensor.
type Reading struct {
	TemperatureC float64 `json:"temperature_c"`
	Humidity     float64 `json:"humidity"`
}

// TemperatureF converts the reading to Fahrenheit.
func (r Reading) TemperatureF() float64 {
	return r.TemperatureC*9/5 + 32
}

// Sensor reads temperature and humidity.
type Sensor interface {
	Read(ctx context.Context) (Reading, error)
}
