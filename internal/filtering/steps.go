package filtering

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/shl-recommender/internal/catalog"
)

type remoteOnlyFilter struct {
	disabled bool
	reason   string
	active   bool
}

// NewRemoteOnly creates a filter that removes assessments without remote testing.
func NewRemoteOnly() Filter {
	return &remoteOnlyFilter{}
}

func (f *remoteOnlyFilter) Name() string { return "remote_only" }

func (f *remoteOnlyFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *remoteOnlyFilter) IsEnabled() bool { return !f.disabled }

func (f *remoteOnlyFilter) Validate(cfg *Config) error {
	f.active = cfg != nil && cfg.RemoteOnly
	return nil
}

func (f *remoteOnlyFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if !f.active {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(item Candidate) bool {
		return item.Record.RemoteSupport == catalog.RemoteYes
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding assessments without remote testing",
			zap.Strings("excluded_assessments", excluded),
			zap.Int("assessments_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *remoteOnlyFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"active": strconv.FormatBool(f.active)},
	}
}

type adaptiveOnlyFilter struct {
	disabled bool
	reason   string
	active   bool
}

// NewAdaptiveOnly creates a filter that keeps only adaptive (IRT) assessments.
func NewAdaptiveOnly() Filter {
	return &adaptiveOnlyFilter{}
}

func (f *adaptiveOnlyFilter) Name() string { return "adaptive_only" }

func (f *adaptiveOnlyFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *adaptiveOnlyFilter) IsEnabled() bool { return !f.disabled }

func (f *adaptiveOnlyFilter) Validate(cfg *Config) error {
	f.active = cfg != nil && cfg.AdaptiveOnly
	return nil
}

func (f *adaptiveOnlyFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if !f.active {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(item Candidate) bool {
		return item.Record.AdaptiveSupport == catalog.AdaptiveYes
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding non adaptive assessments",
			zap.Strings("excluded_assessments", excluded),
			zap.Int("assessments_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *adaptiveOnlyFilter) Status() Status {
	return Status{
		Name:    f.Name(),
		Enabled: f.IsEnabled(),
		Reason:  f.reason,
		Details: map[string]string{"active": strconv.FormatBool(f.active)},
	}
}

type maxDurationFilter struct {
	disabled bool
	reason   string
	minutes  int
}

// NewMaxDuration creates a filter that removes assessments longer than the limit.
// Assessments with unknown duration are kept.
func NewMaxDuration() Filter {
	return &maxDurationFilter{}
}

func (f *maxDurationFilter) Name() string { return "max_duration" }

func (f *maxDurationFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *maxDurationFilter) IsEnabled() bool { return !f.disabled }

func (f *maxDurationFilter) Validate(cfg *Config) error {
	f.minutes = 0
	if cfg == nil {
		return nil
	}
	if cfg.MaxDuration < 0 {
		return fmt.Errorf("max duration must not be negative, got %d", cfg.MaxDuration)
	}
	f.minutes = cfg.MaxDuration
	return nil
}

func (f *maxDurationFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if f.minutes == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(item Candidate) bool {
		return item.Record.Duration == nil || *item.Record.Duration <= f.minutes
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding assessments by duration",
			zap.Int("max_duration", f.minutes),
			zap.Strings("excluded_assessments", excluded),
			zap.Int("assessments_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *maxDurationFilter) Status() Status {
	details := map[string]string{}
	if f.minutes > 0 {
		details["max_duration"] = strconv.Itoa(f.minutes)
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}

type testTypesFilter struct {
	disabled bool
	reason   string
	types    []string
}

// NewTestTypes creates a filter that keeps assessments sharing at least one requested test type.
func NewTestTypes() Filter {
	return &testTypesFilter{}
}

func (f *testTypesFilter) Name() string { return "test_types" }

func (f *testTypesFilter) Disable(reason string) {
	f.disabled = true
	f.reason = reason
}

func (f *testTypesFilter) IsEnabled() bool { return !f.disabled }

func (f *testTypesFilter) Validate(cfg *Config) error {
	f.types = nil
	if cfg == nil {
		return nil
	}
	for _, t := range cfg.TestTypes {
		if t = strings.TrimSpace(t); t != "" {
			f.types = append(f.types, t)
		}
	}
	return nil
}

func (f *testTypesFilter) Apply(_ context.Context, deps Deps, c *Candidates) (*Candidates, Step, error) {
	initial := c.Len()
	if len(f.types) == 0 {
		return c, Step{Initial: initial, Dropped: 0, Left: c.Len()}, nil
	}

	excluded := c.Keep(func(item Candidate) bool {
		for _, have := range item.Record.TestTypes {
			for _, want := range f.types {
				if strings.EqualFold(have, want) {
					return true
				}
			}
		}
		return false
	})
	if deps.Logger != nil && len(excluded) > 0 {
		deps.Logger.Debug("excluding assessments by test types",
			zap.Strings("test_types", f.types),
			zap.Strings("excluded_assessments", excluded),
			zap.Int("assessments_left", c.Len()),
		)
	}

	return c, Step{Initial: initial, Dropped: len(excluded), Left: c.Len()}, nil
}

func (f *testTypesFilter) Status() Status {
	details := map[string]string{}
	if len(f.types) > 0 {
		details["test_types"] = strings.Join(f.types, ",")
	}
	return Status{Name: f.Name(), Enabled: f.IsEnabled(), Reason: f.reason, Details: details}
}
