// Package config defines the benchmark configuration. A Config is built
// once at startup, validated before any network activity, and passed
// explicitly to every component; there is no ambient global state.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine selection values.
const (
	EnginePrimary   = "primary"
	EngineSecondary = "secondary"
	EngineBoth      = "both"
)

// Prompt type labels, in sweep order.
const (
	PromptSimple  = "simple"
	PromptComplex = "complex"
)

// Endpoint is a backend under test. Immutable once configured.
type Endpoint struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

// Config is the full benchmark configuration.
type Config struct {
	// Engine selects which backends to sweep: primary, secondary or both.
	Engine string `yaml:"engine"`

	MaxTokens   []int   `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	Repetitions int     `yaml:"repetitions"`

	// Timeout bounds each request attempt. MaxRetries is the total attempt
	// budget per logical request; Backoff is the base pause between
	// attempts, multiplied by the number of attempts already failed.
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`

	SimplePrompt  string `yaml:"simple_prompt"`
	ComplexPrompt string `yaml:"complex_prompt"`

	Primary   Endpoint `yaml:"primary"`
	Secondary Endpoint `yaml:"secondary"`

	// Output is the path of the CSV result log.
	Output string `yaml:"output"`

	// DryRun replaces the transport with a deterministic synthetic client;
	// no network calls are made.
	DryRun bool `yaml:"dry_run"`

	// FailFast aborts the sweep after the first fully failed batch. The
	// default is to log the failure and continue.
	FailFast bool `yaml:"fail_fast"`

	// Parallel lets the two endpoints' sweeps run concurrently when both
	// engines are selected. Requests to one endpoint stay strictly serial.
	Parallel bool `yaml:"parallel"`
}

// Default returns the default configuration. Endpoint models have no
// sensible default and must be provided by the user.
func Default() *Config {
	return &Config{
		Engine:       EngineBoth,
		MaxTokens:    []int{128, 256, 512},
		Temperature:  0.7,
		Repetitions:  5,
		Timeout:      120 * time.Second,
		MaxRetries:   3,
		Backoff:      2 * time.Second,
		SimplePrompt: "What is the capital of France?",
		ComplexPrompt: "Explain the differences between TCP and UDP, covering reliability, " +
			"ordering, congestion control and typical use cases for each protocol.",
		Primary:   Endpoint{Name: "primary", URL: "http://localhost:8000"},
		Secondary: Endpoint{Name: "secondary", URL: "http://localhost:8001"},
		Output:    "benchmark_results.csv",
	}
}

// Load reads a YAML config file over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration. Any error here is fatal and must be
// reported before a single request is issued.
func (c *Config) Validate() error {
	switch c.Engine {
	case EnginePrimary, EngineSecondary, EngineBoth:
	default:
		return fmt.Errorf("invalid engine %q: must be %s, %s or %s",
			c.Engine, EnginePrimary, EngineSecondary, EngineBoth)
	}

	if len(c.MaxTokens) == 0 {
		return fmt.Errorf("max_tokens list must not be empty")
	}
	for _, n := range c.MaxTokens {
		if n <= 0 {
			return fmt.Errorf("invalid max_tokens value %d: must be positive", n)
		}
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("invalid temperature %.2f: must be within [0, 2]", c.Temperature)
	}
	if c.Repetitions <= 0 {
		return fmt.Errorf("invalid repetitions %d: must be positive", c.Repetitions)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("invalid max_retries %d: must be positive", c.MaxRetries)
	}
	if c.Backoff < 0 {
		return fmt.Errorf("invalid backoff %s: must not be negative", c.Backoff)
	}

	if c.SimplePrompt == "" || c.ComplexPrompt == "" {
		return fmt.Errorf("both simple_prompt and complex_prompt must be set")
	}
	if c.Output == "" {
		return fmt.Errorf("output path must be set")
	}
	if c.Parallel && c.Engine != EngineBoth {
		return fmt.Errorf("parallel mode requires engine=%s", EngineBoth)
	}

	for _, ep := range c.SelectedEndpoints() {
		if err := ep.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e Endpoint) validate() error {
	if e.Name == "" {
		return fmt.Errorf("endpoint name must be set")
	}
	u, err := url.Parse(e.URL)
	if err != nil {
		return fmt.Errorf("endpoint %s: invalid URL %q: %w", e.Name, e.URL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint %s: invalid URL %q: must be http(s) with a host", e.Name, e.URL)
	}
	if e.Model == "" {
		return fmt.Errorf("endpoint %s: model must be set", e.Name)
	}
	return nil
}

// SelectedEndpoints returns the endpoints covered by the engine selection,
// primary before secondary.
func (c *Config) SelectedEndpoints() []Endpoint {
	switch c.Engine {
	case EnginePrimary:
		return []Endpoint{c.Primary}
	case EngineSecondary:
		return []Endpoint{c.Secondary}
	default:
		return []Endpoint{c.Primary, c.Secondary}
	}
}

// PromptTypes returns the prompt labels with their text, simple first.
func (c *Config) PromptTypes() []struct{ Label, Text string } {
	return []struct{ Label, Text string }{
		{PromptSimple, c.SimplePrompt},
		{PromptComplex, c.ComplexPrompt},
	}
}
