package inference

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/teslashibe/go-edgeassist/internal/httpc"
)

// Defaults target an Ollama server on the device itself.
const (
	DefaultBaseURL    = "http://localhost:11434/v1"
	DefaultModel      = "llama3.2"
	DefaultEmbedModel = "nomic-embed-text"
)

// Config is shared by every provider constructor. Build it with
// DefaultConfig and Options rather than by hand.
type Config struct {
	BaseURL string
	APIKey  string // Ollama ignores it

	// HTTPClient is built from Timeout by Apply when unset.
	HTTPClient *http.Client
	Timeout    time.Duration

	Model       string
	EmbedModel  string
	MaxTokens   int
	Temperature float64

	// A failed request is retried MaxRetries times, waiting RetryDelay
	// longer before each attempt.
	MaxRetries int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Option changes one field of a Config.
type Option func(*Config)

func WithBaseURL(url string) Option        { return func(c *Config) { c.BaseURL = url } }
func WithAPIKey(key string) Option         { return func(c *Config) { c.APIKey = key } }
func WithHTTPClient(hc *http.Client) Option { return func(c *Config) { c.HTTPClient = hc } }
func WithModel(model string) Option        { return func(c *Config) { c.Model = model } }
func WithEmbedModel(model string) Option   { return func(c *Config) { c.EmbedModel = model } }
func WithMaxTokens(n int) Option           { return func(c *Config) { c.MaxTokens = n } }
func WithTemperature(t float64) Option     { return func(c *Config) { c.Temperature = t } }
func WithTimeout(d time.Duration) Option   { return func(c *Config) { c.Timeout = d } }
func WithLogger(l *slog.Logger) Option     { return func(c *Config) { c.Logger = l } }

// WithRetry sets how often and how patiently retryable failures are
// retried. Zero retries disables it.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Config) {
		c.MaxRetries = retries
		c.RetryDelay = delay
	}
}

// DefaultConfig returns the settings for the on-device server.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     DefaultBaseURL,
		Model:       DefaultModel,
		EmbedModel:  DefaultEmbedModel,
		MaxTokens:   512,
		Temperature: 0.7,
		Timeout:     2 * time.Minute,
		MaxRetries:  2,
		RetryDelay:  250 * time.Millisecond,
		Logger:      slog.Default(),
	}
}

// Apply runs opts in order and fills in the HTTP client and logger.
func (c *Config) Apply(opts ...Option) {
	for _, o := range opts {
		o(c)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = httpc.NewClient(c.Timeout)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate reports the first missing required field.
func (c *Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return ErrNoBaseURL
	case c.Model == "":
		return ErrNoModel
	}
	return nil
}
