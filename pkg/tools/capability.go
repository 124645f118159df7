package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Capability performs a tool's side effect and returns the text the model sees.
type Capability interface {
	Invoke(ctx context.Context, args json.RawMessage) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, args json.RawMessage) (string, error)

func (f CapabilityFunc) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	return f(ctx, args)
}

// ErrBadArguments marks argument decoding failures.
var ErrBadArguments = errors.New("tools: bad arguments")

// Typed wraps fn so the raw arguments are decoded into A first.
func Typed[A any](fn func(ctx context.Context, args A) (string, error)) Capability {
	return CapabilityFunc(func(ctx context.Context, raw json.RawMessage) (string, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("%w: %v", ErrBadArguments, err)
			}
		}
		return fn(ctx, args)
	})
}

// LightArgs are the arguments of set_light.
type LightArgs struct {
	Status string `json:"status"`
}

// EnvironmentArgs are the arguments of get_environment_metrics.
type EnvironmentArgs struct {
	Location string `json:"location,omitempty"`
}

// PlayArgs are the arguments of play_music.
type PlayArgs struct {
	Query string `json:"query"`
}

// NoArgs is used by tools without parameters.
type NoArgs struct{}

// Hardware is the light and sensor surface.
type Hardware interface {
	SetLight(ctx context.Context, status string) string
	ReadEnvironment(ctx context.Context, location string) string
}

// Player is the media playback surface.
type Player interface {
	Play(ctx context.Context, query string) error
	TogglePause(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Identifier names the song the user is singing.
type Identifier interface {
	Identify(ctx context.Context) string
}

// Surfaces are the collaborators the built-in tools act on.
type Surfaces struct {
	Hardware   Hardware
	Player     Player
	Identifier Identifier
}

// Bind builds the capability for every tool from the given surfaces.
func Bind(s Surfaces) Bindings {
	var b Bindings
	if s.Hardware != nil {
		b.SetLight = Typed(func(ctx context.Context, a LightArgs) (string, error) {
			return s.Hardware.SetLight(ctx, strings.ToLower(strings.TrimSpace(a.Status))), nil
		})
		b.EnvironmentMetrics = Typed(func(ctx context.Context, a EnvironmentArgs) (string, error) {
			loc := strings.TrimSpace(a.Location)
			if loc == "" {
				loc = "indoor"
			}
			return s.Hardware.ReadEnvironment(ctx, loc), nil
		})
	}
	if s.Player != nil {
		b.PlayMusic = Typed(func(ctx context.Context, a PlayArgs) (string, error) {
			if err := s.Player.Play(ctx, a.Query); err != nil {
				return "", err
			}
			return "Playing: " + a.Query, nil
		})
		b.PauseResume = Typed(func(ctx context.Context, _ NoArgs) (string, error) {
			if err := s.Player.TogglePause(ctx); err != nil {
				return "", err
			}
			return "Playback paused/resumed.", nil
		})
		b.StopMusic = Typed(func(ctx context.Context, _ NoArgs) (string, error) {
			if err := s.Player.Stop(ctx); err != nil {
				return "", err
			}
			return "Playback stopped.", nil
		})
	}
	if s.Identifier != nil {
		b.IdentifySong = Typed(func(ctx context.Context, _ NoArgs) (string, error) {
			return s.Identifier.Identify(ctx), nil
		})
	}
	return b
}
