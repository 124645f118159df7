// Package config loads edgeassist configuration from flags, environment and YAML.
//
// Every flag resolves in order: command line, EDGEASSIST_* environment variable,
// config file key, built-in default.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable understood by edgeassist.
const EnvPrefix = "EDGEASSIST_"

// Config is the resolved process configuration.
type Config struct {
	Model     ModelConfig
	Gemini    GeminiConfig
	History   HistoryConfig
	Tools     ToolsConfig
	Player    PlayerConfig
	Retrieval RetrievalConfig
	Web       WebConfig
	Session   SessionConfig
	Safety    SafetyConfig
	Log       LogConfig

	// SystemPrompt overrides the built-in assistant prompt when non-empty.
	SystemPrompt string
}

// ModelConfig points at the OpenAI-compatible chat endpoint (Ollama's /v1 by default).
type ModelConfig struct {
	URL         string
	APIKey      string
	Name        string
	EmbedModel  string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	Retries     int
}

// GeminiConfig enables the cloud fallback when APIKey is set.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// HistoryConfig bounds the transcript. MaxTurns of 0 keeps everything.
type HistoryConfig struct {
	MaxTurns int
}

type ToolsConfig struct {
	Timeout time.Duration
}

type PlayerConfig struct {
	CommandTimeout time.Duration
}

type RetrievalConfig struct {
	DB          string
	TopK        int
	Model       string
	Temperature float64
}

type WebConfig struct {
	Enabled bool
	Addr    string
}

type SessionConfig struct {
	TTL time.Duration
}

type SafetyConfig struct {
	Markers []string
}

type LogConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			URL:         "http://localhost:11434/v1",
			Name:        "llama3.2",
			EmbedModel:  "nomic-embed-text",
			Temperature: 0.7,
			MaxTokens:   512,
			Timeout:     2 * time.Minute,
			Retries:     2,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.0-flash",
		},
		History: HistoryConfig{MaxTurns: 40},
		Tools:   ToolsConfig{Timeout: 2 * time.Minute},
		Player:  PlayerConfig{CommandTimeout: 5 * time.Second},
		Retrieval: RetrievalConfig{
			DB:          "songs.db",
			TopK:        3,
			Model:       "llama3.2",
			Temperature: 0.1,
		},
		Web:     WebConfig{Addr: ":8080"},
		Session: SessionConfig{TTL: 30 * time.Minute},
		Safety:  SafetyConfig{Markers: []string{"parameters"}},
		Log:     LogConfig{Level: "info"},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model.URL) == "" {
		errs = append(errs, errors.New("config: model url is required"))
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		errs = append(errs, errors.New("config: model name is required"))
	}
	if c.Model.Timeout <= 0 {
		errs = append(errs, errors.New("config: model timeout must be positive"))
	}
	if c.Model.Retries < 0 {
		errs = append(errs, errors.New("config: model retries must not be negative"))
	}
	if c.History.MaxTurns < 0 {
		errs = append(errs, errors.New("config: history max turns must not be negative"))
	}
	if c.Tools.Timeout <= 0 {
		errs = append(errs, errors.New("config: tool timeout must be positive"))
	}
	if c.Player.CommandTimeout <= 0 {
		errs = append(errs, errors.New("config: player command timeout must be positive"))
	}
	if c.Retrieval.TopK < 1 {
		errs = append(errs, errors.New("config: retrieval top_k must be at least 1"))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("config: session ttl must be positive"))
	}
	return errors.Join(errs...)
}

// YamlSource implements cli.ValueSource for one key of a flattened YAML document.
type YamlSource struct {
	data map[string]any
	key  string
}

func (y *YamlSource) Lookup() (string, bool) {
	v, ok := y.data[y.key]
	if !ok {
		return "", false
	}
	if slice, ok := v.([]any); ok {
		strs := make([]string, 0, len(slice))
		for _, item := range slice {
			strs = append(strs, fmt.Sprintf("%v", item))
		}
		return strings.Join(strs, ","), true
	}
	return fmt.Sprintf("%v", v), true
}

func (y *YamlSource) String() string   { return "yaml" }
func (y *YamlSource) GoString() string { return "yaml" }

// LoadFile reads a YAML config file and flattens nested maps into dotted keys,
// so `model: {url: x}` is looked up as "model.url".
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	flat := make(map[string]any)
	flatten("", doc, flat)
	return flat, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// Flags returns the flag set shared by every edgeassist command. The config file
// is resolved before flag parsing so its values can act as a flag source.
func Flags() []cli.Flag {
	path := configPath(os.Args[1:])
	var fileData map[string]any
	if path != "" {
		data, err := LoadFile(path)
		if err != nil && !(errors.Is(err, os.ErrNotExist) && path == defaultConfigPath()) {
			fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", path, err)
		}
		fileData = data
	}
	return flagsFrom(fileData)
}

func flagsFrom(fileData map[string]any) []cli.Flag {
	d := Default()

	src := func(key string) cli.ValueSourceChain {
		env := EnvPrefix + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
		chain := cli.ValueSourceChain{}
		chain.Chain = append(chain.Chain, cli.EnvVar(env))
		if fileData != nil {
			chain.Chain = append(chain.Chain, &YamlSource{data: fileData, key: key})
		}
		return chain
	}

	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a YAML config file", Sources: cli.EnvVars(EnvPrefix + "CONFIG")},

		// Model
		&cli.StringFlag{Name: "model-url", Value: d.Model.URL, Usage: "OpenAI-compatible API base URL", Sources: src("model.url")},
		&cli.StringFlag{Name: "model-api-key", Usage: "API key for the model endpoint", Sources: src("model.api_key")},
		&cli.StringFlag{Name: "model", Aliases: []string{"m"}, Value: d.Model.Name, Usage: "chat model name", Sources: src("model.name")},
		&cli.StringFlag{Name: "embed-model", Value: d.Model.EmbedModel, Usage: "embedding model name", Sources: src("model.embed_model")},
		&cli.FloatFlag{Name: "temperature", Value: d.Model.Temperature, Usage: "sampling temperature", Sources: src("model.temperature")},
		&cli.IntFlag{Name: "max-tokens", Value: d.Model.MaxTokens, Usage: "maximum tokens per reply", Sources: src("model.max_tokens")},
		&cli.DurationFlag{Name: "model-timeout", Value: d.Model.Timeout, Usage: "timeout for each model request", Sources: src("model.timeout")},
		&cli.IntFlag{Name: "model-retries", Value: d.Model.Retries, Usage: "retries for retryable model errors", Sources: src("model.retries")},

		// Cloud fallback
		&cli.StringFlag{Name: "gemini-api-key", Usage: "Gemini API key; enables cloud fallback", Sources: src("gemini.api_key")},
		&cli.StringFlag{Name: "gemini-model", Value: d.Gemini.Model, Usage: "Gemini model name", Sources: src("gemini.model")},

		// Conversation and tools
		&cli.IntFlag{Name: "history", Value: d.History.MaxTurns, Usage: "maximum non-system turns kept per session (0 keeps all)", Sources: src("history.max_turns")},
		&cli.DurationFlag{Name: "tool-timeout", Value: d.Tools.Timeout, Usage: "timeout for a single tool invocation", Sources: src("tools.timeout")},
		&cli.DurationFlag{Name: "player-timeout", Value: d.Player.CommandTimeout, Usage: "timeout for a single player command", Sources: src("player.command_timeout")},
		&cli.StringSliceFlag{Name: "safety-marker", Value: d.Safety.Markers, Usage: "markers that flag leaked tool syntax", Sources: src("safety.markers")},
		&cli.StringFlag{Name: "system-prompt", Usage: "override the assistant system prompt", Sources: src("system_prompt")},

		// Retrieval
		&cli.StringFlag{Name: "songs-db", Value: d.Retrieval.DB, Usage: "sqlite song lyrics index", Sources: src("retrieval.db")},
		&cli.IntFlag{Name: "top-k", Value: d.Retrieval.TopK, Usage: "lyrics chunks retrieved per identification", Sources: src("retrieval.top_k")},
		&cli.StringFlag{Name: "identify-model", Value: d.Retrieval.Model, Usage: "model used to name the identified song", Sources: src("retrieval.model")},
		&cli.FloatFlag{Name: "identify-temperature", Value: d.Retrieval.Temperature, Usage: "temperature for identification", Sources: src("retrieval.temperature")},

		// Web
		&cli.BoolFlag{Name: "web", Usage: "serve the web console", Sources: src("web.enabled")},
		&cli.StringFlag{Name: "addr", Value: d.Web.Addr, Usage: "web console listen address", Sources: src("web.addr")},
		&cli.DurationFlag{Name: "session-ttl", Value: d.Session.TTL, Usage: "idle time before a web session is dropped", Sources: src("session.ttl")},

		// Logging
		&cli.StringFlag{Name: "log-level", Value: d.Log.Level, Usage: "debug, info, warn or error", Sources: src("log.level")},
		&cli.StringFlag{Name: "log-format", Usage: "console or json", Sources: src("log.format")},
	}
}

// FromCommand builds a Config from parsed flags and validates it.
func FromCommand(c *cli.Command) (*Config, error) {
	cfg := &Config{
		Model: ModelConfig{
			URL:         c.String("model-url"),
			APIKey:      c.String("model-api-key"),
			Name:        c.String("model"),
			EmbedModel:  c.String("embed-model"),
			Temperature: c.Float("temperature"),
			MaxTokens:   c.Int("max-tokens"),
			Timeout:     c.Duration("model-timeout"),
			Retries:     c.Int("model-retries"),
		},
		Gemini: GeminiConfig{
			APIKey: c.String("gemini-api-key"),
			Model:  c.String("gemini-model"),
		},
		History: HistoryConfig{MaxTurns: c.Int("history")},
		Tools:   ToolsConfig{Timeout: c.Duration("tool-timeout")},
		Player:  PlayerConfig{CommandTimeout: c.Duration("player-timeout")},
		Retrieval: RetrievalConfig{
			DB:          c.String("songs-db"),
			TopK:        c.Int("top-k"),
			Model:       c.String("identify-model"),
			Temperature: c.Float("identify-temperature"),
		},
		Web: WebConfig{
			Enabled: c.Bool("web"),
			Addr:    c.String("addr"),
		},
		Session:      SessionConfig{TTL: c.Duration("session-ttl")},
		Safety:       SafetyConfig{Markers: c.StringSlice("safety-marker")},
		Log:          LogConfig{Level: c.String("log-level"), Format: c.String("log-format")},
		SystemPrompt: c.String("system-prompt"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Redacted returns key=value lines with secrets masked, for `--log-level debug` startup dumps.
func (c *Config) Redacted() []any {
	return []any{
		"model.url", c.Model.URL,
		"model.name", c.Model.Name,
		"model.api_key", mask(c.Model.APIKey),
		"gemini.api_key", mask(c.Gemini.APIKey),
		"gemini.model", c.Gemini.Model,
		"history.max_turns", c.History.MaxTurns,
		"tools.timeout", c.Tools.Timeout,
		"player.command_timeout", c.Player.CommandTimeout,
		"retrieval.db", c.Retrieval.DB,
		"retrieval.top_k", c.Retrieval.TopK,
		"web.enabled", c.Web.Enabled,
		"web.addr", c.Web.Addr,
	}
}

func mask(s string) string {
	if len(s) <= 3 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-3) + s[len(s)-3:]
}

func configPath(args []string) string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	for i, arg := range args {
		if arg == "--config" || arg == "-c" {
			if i+1 < len(args) {
				return args[i+1]
			}
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	return defaultConfigPath()
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "edgeassist", "config.yaml")
}
