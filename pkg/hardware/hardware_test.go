package hardware

import (
	"context"
	"errors"
	"testing"
)

func newSurface(light *SimLight, sensor Sensor) *Surface {
	return NewSurface(light, sensor, nil)
}

func TestSetLight(t *testing.T) {
	light := &SimLight{}
	s := newSurface(light, NewSimSensor())

	if got := s.SetLight(context.Background(), "ON"); got != "The light has been turned on successfully." {
		t.Errorf("on = %q", got)
	}
	if lit, _ := light.IsLit(); !lit {
		t.Error("light should be lit")
	}
	if s.LightState() != "on" {
		t.Errorf("state = %q", s.LightState())
	}
	if got := s.SetLight(context.Background(), "off"); got != "The light has been turned off successfully." {
		t.Errorf("off = %q", got)
	}
}

func TestSetLightInvalid(t *testing.T) {
	s := newSurface(&SimLight{}, NewSimSensor())
	if got := s.SetLight(context.Background(), "Dim"); got != "Error: Invalid status 'dim'. Use 'on' or 'off'." {
		t.Errorf("got %q", got)
	}
}

func TestSetLightStuckPin(t *testing.T) {
	s := newSurface(&SimLight{Stuck: true}, NewSimSensor())
	if got := s.SetLight(context.Background(), "on"); got != "Error: Failed to turn on the light." {
		t.Errorf("got %q", got)
	}
	if s.LightState() != "off" {
		t.Errorf("state changed to %q", s.LightState())
	}
}

func TestSetLightDriverError(t *testing.T) {
	s := newSurface(&SimLight{Err: errors.New("gpio busy")}, NewSimSensor())
	if got := s.SetLight(context.Background(), "off"); got != "Error: Failed to turn off the light." {
		t.Errorf("got %q", got)
	}
}

func TestReadEnvironment(t *testing.T) {
	sensor := &SimSensor{Base: Reading{TemperatureC: 21.5, Humidity: 40}}
	s := newSurface(&SimLight{}, sensor)
	if got := s.ReadEnvironment(context.Background(), ""); got != "Temperature is 21.5°C and Humidity is 40.0%." {
		t.Errorf("got %q", got)
	}
}

func TestReadEnvironmentFailure(t *testing.T) {
	sensor := &SimSensor{Base: Reading{TemperatureC: 20}, FailEvery: 2}
	s := newSurface(&SimLight{}, sensor)
	ctx := context.Background()

	if got := s.ReadEnvironment(ctx, "kitchen"); got == "Error: Failed to read from the sensor." {
		t.Error("first read should succeed")
	}
	if got := s.ReadEnvironment(ctx, "kitchen"); got != "Error: Failed to read from the sensor." {
		t.Errorf("second read = %q", got)
	}
}

func TestReadEnvironmentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := newSurface(&SimLight{}, NewSimSensor())
	if got := s.ReadEnvironment(ctx, "indoor"); got != "Error: Failed to read from the sensor." {
		t.Errorf("got %q", got)
	}
}

func TestSimSensorJitter(t *testing.T) {
	s := &SimSensor{Base: Reading{TemperatureC: 20, Humidity: 50}, Jitter: 1}
	for i := 0; i < 50; i++ {
		r, err := s.Read(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if r.TemperatureC < 19 || r.TemperatureC > 21 {
			t.Fatalf("temperature %v outside jitter", r.TemperatureC)
		}
	}
}

func TestTemperatureF(t *testing.T) {
	if f := (Reading{TemperatureC: 100}).TemperatureF(); f != 212 {
		t.Errorf("got %v", f)
	}
}
