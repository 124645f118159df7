package hardware

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
)

// ErrSensorTimeout is what a flaky sensor returns when it misses a sample.
var ErrSensorTimeout = errors.New("hardware: sensor did not respond")

// SimLight is an in-memory light. Stuck makes the pin ignore Set.
type SimLight struct {
	mu    sync.Mutex
	lit   bool
	Stuck bool
	Err   error
}

func (l *SimLight) Set(on bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	if !l.Stuck {
		l.lit = on
	}
	return nil
}

func (l *SimLight) IsLit() (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lit, nil
}

// SimSensor returns a base reading with a little jitter. FailEvery makes
// every n-th read fail, like a real DHT22 does now and then.
type SimSensor struct {
	Base      Reading
	Jitter    float64
	FailEvery int

	mu    sync.Mutex
	reads int
}

// NewSimSensor returns a sensor around a comfortable room.
func NewSimSensor() *SimSensor {
	return &SimSensor{Base: Reading{TemperatureC: 22, Humidity: 45}, Jitter: 0.5}
}

func (s *SimSensor) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return Reading{}, ErrSensorTimeout
	}
	r := s.Base
	if s.Jitter > 0 {
		r.TemperatureC += (rand.Float64()*2 - 1) * s.Jitter
		r.Humidity += (rand.Float64()*2 - 1) * s.Jitter
	}
	return r, nil
}
