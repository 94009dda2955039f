package filtering

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Filter represents a single filtering step applied to ranked candidates.
type Filter interface {
	Name() string
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	Apply(ctx context.Context, deps Deps, c *Candidates) (*Candidates, Step, error)
}

// Deps aggregates dependencies shared across all filtering steps.
type Deps struct {
	Logger *zap.Logger
}

// Step describes the result of executing a filtering step.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Config contains the per-request filter settings.
type Config struct {
	RemoteOnly   bool     `json:"remote_only" mapstructure:"remote-only"`
	AdaptiveOnly bool     `json:"adaptive_only" mapstructure:"adaptive-only"`
	MaxDuration  int      `json:"max_duration" mapstructure:"max-duration"`
	TestTypes    []string `json:"test_types" mapstructure:"test-types"`
}

// IsZero reports whether no filter would drop anything.
func (c *Config) IsZero() bool {
	return c == nil || (!c.RemoteOnly && !c.AdaptiveOnly && c.MaxDuration == 0 && len(c.TestTypes) == 0)
}

// Status represents runtime information about a filter.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
	Details map[string]string
}

// statusProvider is implemented by filters that can supply detailed status information.
type statusProvider interface {
	Status() Status
}

// Default returns every known filter in application order.
func Default() []Filter {
	return []Filter{
		NewRemoteOnly(),
		NewAdaptiveOnly(),
		NewMaxDuration(),
		NewTestTypes(),
	}
}

// DisableByName marks a filter with the provided name as disabled while keeping it in the list.
func DisableByName(steps []Filter, name, reason string) {
	for _, step := range steps {
		if step.Name() == name {
			step.Disable(reason)
		}
	}
}

// ForConfig returns the default filters with every step cfg does not request disabled.
func ForConfig(cfg *Config) []Filter {
	if cfg == nil {
		cfg = &Config{}
	}

	steps := Default()
	requested := map[string]bool{
		"remote_only":   cfg.RemoteOnly,
		"adaptive_only": cfg.AdaptiveOnly,
		"max_duration":  cfg.MaxDuration != 0,
		"test_types":    len(cfg.TestTypes) > 0,
	}
	for name, on := range requested {
		if !on {
			DisableByName(steps, name, "not requested")
		}
	}
	return steps
}

// Validate checks cfg against every enabled step without touching candidates.
func Validate(cfg *Config, steps []Filter) error {
	for _, step := range steps {
		if !step.IsEnabled() {
			continue
		}
		if err := step.Validate(cfg); err != nil {
			return fmt.Errorf("%s: %w", step.Name(), err)
		}
	}
	return nil
}

// Run executes the supplied filters sequentially and returns the surviving candidates.
func Run(ctx context.Context, cfg *Config, deps Deps, steps []Filter, c *Candidates) (*Candidates, error) {
	if err := Validate(cfg, steps); err != nil {
		return nil, err
	}

	for _, step := range steps {
		if !step.IsEnabled() {
			if deps.Logger != nil {
				deps.Logger.Debug("filter disabled", zap.String("name", step.Name()))
			}
			continue
		}

		next, info, err := step.Apply(ctx, deps, c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.Name(), err)
		}

		if deps.Logger != nil {
			deps.Logger.Debug("filter step",
				zap.String("name", step.Name()),
				zap.Int("initial", info.Initial),
				zap.Int("dropped", info.Dropped),
				zap.Int("left", info.Left),
			)
		}

		c = next
	}

	return c, nil
}

// Describe returns status entries for the provided filters.
func Describe(steps []Filter) []Status {
	statuses := make([]Status, 0, len(steps))
	for _, step := range steps {
		if reporter, ok := step.(statusProvider); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}

		statuses = append(statuses, Status{
			Name:    step.Name(),
			Enabled: step.IsEnabled(),
		})
	}
	return statuses
}
