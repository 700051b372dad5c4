// Package config loads the pathfsm server configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the server configuration.
type Config struct {
	// Listen is the TCP address to serve on.
	Listen string `yaml:"listen"`

	// MaxConnections caps concurrently open connections, idle keep-alive
	// ones included. Zero means unlimited. A client waits for a free slot
	// until some connection closes, so keep IdleTimeout short when this is
	// set.
	MaxConnections int `yaml:"max_connections"`

	// Table is the path of the transition table file.
	Table string `yaml:"table"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// IdleTimeout closes keep-alive connections left idle this long. Zero
	// falls back to ReadHeaderTimeout when MaxConnections is set.
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Log         LogConfig         `yaml:"log"`
	RequestID   RequestIDConfig   `yaml:"request_id"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Compression CompressionConfig `yaml:"compression"`

	// Responses maps route names from the table file to their content.
	Responses map[string]Response `yaml:"responses"`

	// NotFound is served when no route matches.
	NotFound Response `yaml:"not_found"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// RequestIDConfig configures request ID propagation.
type RequestIDConfig struct {
	Header        string `yaml:"header"`
	TrustIncoming bool   `yaml:"trust_incoming"`

	// Generator is uuidv4, uuidv7 or short.
	Generator string `yaml:"generator"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// CompressionConfig configures response compression.
type CompressionConfig struct {
	Enabled bool `yaml:"enabled"`

	// Level is the flate level, -2 to 9. Zero means the default level.
	Level int `yaml:"level"`

	// MinLength is the smallest body worth compressing, in bytes.
	MinLength int `yaml:"min_length"`

	// Encoding is gzip, deflate, br or auto. Auto offers all three and
	// sends whichever accepted coding comes out smallest, or the body as
	// it is when none makes it smaller.
	Encoding string `yaml:"encoding"`
}

// Encodings returns the content codings offered for Encoding.
func (c CompressionConfig) Encodings() []string {
	switch strings.ToLower(c.Encoding) {
	case "gzip":
		return []string{"gzip"}
	case "deflate":
		return []string{"deflate"}
	case "br":
		return []string{"br"}
	default:
		return []string{"gzip", "deflate", "br"}
	}
}

// Smallest reports whether Encoding is auto.
func (c CompressionConfig) Smallest() bool {
	return c.Encoding == "" || strings.EqualFold(c.Encoding, "auto")
}

// Response is the content served for one route.
type Response struct {
	// Status defaults to 200 for routes and 404 for NotFound.
	Status int `yaml:"status"`

	// ContentType defaults to the type registered for File's extension,
	// or text/plain for inline bodies.
	ContentType string `yaml:"content_type"`

	// Body is served inline. File, when set, is read at startup instead.
	Body string `yaml:"body"`
	File string `yaml:"file"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen:            ":8080",
		MaxConnections:    10,
		Table:             "routes.yaml",
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		RequestID: RequestIDConfig{
			Header:    "X-Request-ID",
			Generator: "uuidv4",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Compression: CompressionConfig{
			MinLength: 256,
			Encoding:  "auto",
		},
		NotFound: Response{
			Status:      404,
			ContentType: "text/plain; charset=utf-8",
			Body:        "404 page not found\n",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
// Relative table and response file paths in the file are taken relative
// to the file's directory.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes relative file references relative to dir.
func (c *Config) resolvePaths(dir string) {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}

	c.Table = resolve(c.Table)
	for name, r := range c.Responses {
		r.File = resolve(r.File)
		c.Responses[name] = r
	}
	c.NotFound.File = resolve(c.NotFound.File)
}

// applyEnv overrides settings from PATHFSM_* environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PATHFSM_LISTEN"); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup("PATHFSM_TABLE"); ok && v != "" {
		c.Table = v
	}
	if v, ok := lookup("PATHFSM_LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("PATHFSM_LOG_FORMAT"); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := lookup("PATHFSM_MAX_CONNECTIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: PATHFSM_MAX_CONNECTIONS: %v", ErrInvalidConfig, err)
		}
		c.MaxConnections = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot use.
func (c *Config) Validate() error {
	var errs []error
	if c.Listen == "" {
		errs = append(errs, errors.New("listen is empty"))
	}
	if c.Table == "" {
		errs = append(errs, errors.New("table is empty"))
	}
	if c.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("max_connections %d is negative", c.MaxConnections))
	}
	if c.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("idle_timeout %s is negative", c.IdleTimeout))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q is not text or json", c.Log.Format))
	}
	switch c.RequestID.Generator {
	case "", "uuidv4", "uuidv7", "short":
	default:
		errs = append(errs, fmt.Errorf("request_id generator %q is unknown", c.RequestID.Generator))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics path %q must start with /", c.Metrics.Path))
	}
	if err := c.Compression.validate(); err != nil {
		errs = append(errs, err)
	}
	for name, r := range c.Responses {
		if err := r.validate(); err != nil {
			errs = append(errs, fmt.Errorf("response %q: %w", name, err))
		}
	}
	if err := c.NotFound.validate(); err != nil {
		errs = append(errs, fmt.Errorf("not_found: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

func (c CompressionConfig) validate() error {
	if c.Level < -2 || c.Level > 9 {
		return fmt.Errorf("compression level %d is not between -2 and 9", c.Level)
	}
	if c.MinLength < 0 {
		return fmt.Errorf("compression min_length %d is negative", c.MinLength)
	}
	switch strings.ToLower(c.Encoding) {
	case "", "auto", "gzip", "deflate", "br":
	default:
		return fmt.Errorf("compression encoding %q is not auto, gzip, deflate or br", c.Encoding)
	}
	return nil
}

func (r Response) validate() error {
	if r.Status != 0 && (r.Status < 100 || r.Status > 599) {
		return fmt.Errorf("status %d is not an HTTP status", r.Status)
	}
	if r.Body != "" && r.File != "" {
		return errors.New("body and file are mutually exclusive")
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return level, nil
}

// NewLogger builds the slog logger described by l, writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
