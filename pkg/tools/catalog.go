// Package tools defines the capabilities the assistant may invoke, their
// schemas, and the executor that runs them on the model's behalf.
package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/teslashibe/go-edgeassist/pkg/inference"
)

// ID enumerates the tools. Every ID has exactly one catalog entry and one
// Bindings field.
type ID int

const (
	SetLight ID = iota
	EnvironmentMetrics
	PlayMusic
	PauseResume
	StopMusic
	IdentifySong

	numTools
)

// String returns the wire name the model uses.
func (id ID) String() string {
	if id < 0 || id >= numTools {
		return fmt.Sprintf("tool(%d)", int(id))
	}
	return catalog[id].Name
}

// IDs returns every tool in catalog order.
func IDs() []ID {
	ids := make([]ID, numTools)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// Lookup maps a wire name to its ID.
func Lookup(name string) (ID, bool) {
	for id := ID(0); id < numTools; id++ {
		if catalog[id].Name == name {
			return id, true
		}
	}
	return 0, false
}

// Definition is the immutable description of a tool advertised to the model.
type Definition struct {
	ID          ID
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	// Terminal tools end the request with their own outcome.
	Terminal bool

	// Rule is the line the default system prompt uses to steer the model.
	Rule string

	resolved *jsonschema.Resolved
}

// Tool returns the definition in inference wire form.
func (d Definition) Tool() inference.Tool {
	return inference.NewTool(d.Name, d.Description, d.Parameters)
}

// validate checks decoded arguments against the parameter schema.
func (d Definition) validate(args map[string]any) error {
	if d.resolved == nil {
		return nil
	}
	return d.resolved.Validate(args)
}

func object(props map[string]*jsonschema.Schema, required ...string) *jsonschema.Schema {
	if props == nil {
		props = map[string]*jsonschema.Schema{}
	}
	if required == nil {
		required = []string{}
	}
	return &jsonschema.Schema{Type: "object", Properties: props, Required: required}
}

var catalog = [numTools]Definition{
	SetLight: {
		Name:        "set_light",
		Description: "Use this tool ONLY to physically turn the ambient light on or off via GPIO. Do NOT use this for answering questions about lights or general topics.",
		Parameters: object(map[string]*jsonschema.Schema{
			"status": {
				Type:        "string",
				Description: "The desired state: 'on' to power up the light, 'off' to power it down.",
				Enum:        []any{"on", "off"},
			},
		}, "status"),
		Rule: "when the user asks to turn on or off the light, use 'set_light'.",
	},
	EnvironmentMetrics: {
		Name:        "get_environment_metrics",
		Description: "Reads the current temperature and humidity from the sensors. Use this when the user asks about the weather, heat, cold, or air quality inside the room.",
		Parameters: object(map[string]*jsonschema.Schema{
			"location": {
				Type:        "string",
				Description: "The specific room or area to check (e.g., 'indoor', 'kitchen').",
				Default:     json.RawMessage(`"indoor"`),
			},
		}),
		Rule: "when the user asks about temperature or humidity, use 'get_environment_metrics'.",
	},
	PlayMusic: {
		Name:        "play_music",
		Description: "Plays music from a YouTube search or URL. Use this when the user asks to listen to something.",
		Parameters: object(map[string]*jsonschema.Schema{
			"query": {
				Type:        "string",
				Description: "The name of the song or link to play.",
			},
		}, "query"),
		Rule: "when the user asks to play (NOT IDENTIFY) music, use 'play_music'.",
	},
	PauseResume: {
		Name:        "pause_resume_music",
		Description: "Pauses or resumes the current music.",
		Parameters:  object(nil),
		Rule:        "when the user asks to pause or resume music, use 'pause_resume_music'.",
	},
	StopMusic: {
		Name:        "stop_music",
		Description: "Stops playback completely and closes the player.",
		Parameters:  object(nil),
		Rule:        "when the user asks to stop music, use 'stop_music'.",
	},
	IdentifySong: {
		Name:        "identify_song",
		Description: "Starts the music identification process when the user requests to identify a song.",
		Parameters:  object(nil),
		Terminal:    true,
		Rule:        "when the user asks to identify a song, use the 'identify_song' function.",
	},
}

func init() {
	for id := ID(0); id < numTools; id++ {
		d := &catalog[id]
		d.ID = id
		rs, err := d.Parameters.Resolve(nil)
		if err != nil {
			panic(fmt.Sprintf("tools: schema for %s: %v", d.Name, err))
		}
		d.resolved = rs
	}
}

// Definitions returns the catalog in ID order.
func Definitions() []Definition {
	out := make([]Definition, numTools)
	copy(out, catalog[:])
	return out
}

// Describe returns the definition for id.
func Describe(id ID) Definition {
	return catalog[id]
}

// SystemPrompt builds the default assistant prompt from the catalog rules.
func SystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a local AI assistant running on a Raspberry Pi that acts like Alexa. ")
	b.WriteString("### RULES FOR INTERACTIONS: \n")
	for _, d := range catalog {
		b.WriteString(d.Rule)
		b.WriteByte('\n')
	}
	return b.String()
}
