package config

import "fmt"

// EngineUpdate is a partial engine configuration change. Nil fields are
// left untouched by Apply.
type EngineUpdate struct {
	MaxSimultaneousTests     *int     `yaml:"max_simultaneous_tests" json:"maxSimultaneousTests,omitempty"`
	DefaultTrafficAllocation *float64 `yaml:"default_traffic_allocation" json:"defaultTrafficAllocation,omitempty"`
	MinimumSegmentSize       *int     `yaml:"minimum_segment_size" json:"minimumSegmentSize,omitempty"`
	CrossTestIsolationLevel  *string  `yaml:"cross_test_isolation_level" json:"crossTestIsolationLevel,omitempty"`
	HighUtilizationPercent   *float64 `yaml:"high_utilization_percent" json:"highUtilizationPercent,omitempty"`
	HighRequestPercent       *float64 `yaml:"high_request_percent" json:"highRequestPercent,omitempty"`
}

// Validate checks the fields that are present.
func (u EngineUpdate) Validate() error {
	if u.MaxSimultaneousTests != nil && *u.MaxSimultaneousTests <= 0 {
		return fmt.Errorf("max_simultaneous_tests must be positive, got %d", *u.MaxSimultaneousTests)
	}
	if u.DefaultTrafficAllocation != nil &&
		(*u.DefaultTrafficAllocation <= 0 || *u.DefaultTrafficAllocation > 100) {
		return fmt.Errorf("default_traffic_allocation must be in (0, 100], got %v", *u.DefaultTrafficAllocation)
	}
	if u.CrossTestIsolationLevel != nil {
		switch *u.CrossTestIsolationLevel {
		case IsolationRelaxed, IsolationStrict:
		default:
			return fmt.Errorf("cross_test_isolation_level must be %q or %q, got %q",
				IsolationRelaxed, IsolationStrict, *u.CrossTestIsolationLevel)
		}
	}
	return nil
}

// Apply merges the update into cfg and returns the result.
func (u EngineUpdate) Apply(cfg EngineConfig) EngineConfig {
	if u.MaxSimultaneousTests != nil {
		cfg.MaxSimultaneousTests = *u.MaxSimultaneousTests
	}
	if u.DefaultTrafficAllocation != nil {
		cfg.DefaultTrafficAllocation = *u.DefaultTrafficAllocation
	}
	if u.MinimumSegmentSize != nil {
		cfg.MinimumSegmentSize = *u.MinimumSegmentSize
	}
	if u.CrossTestIsolationLevel != nil {
		cfg.CrossTestIsolationLevel = *u.CrossTestIsolationLevel
	}
	if u.HighUtilizationPercent != nil {
		cfg.HighUtilizationPercent = *u.HighUtilizationPercent
	}
	if u.HighRequestPercent != nil {
		cfg.HighRequestPercent = *u.HighRequestPercent
	}
	return cfg
}

// Diff returns the update that transforms old into new, with equal fields
// left nil. Used by the config watcher to forward only real changes.
func Diff(old, updated EngineConfig) EngineUpdate {
	var u EngineUpdate
	if old.MaxSimultaneousTests != updated.MaxSimultaneousTests {
		v := updated.MaxSimultaneousTests
		u.MaxSimultaneousTests = &v
	}
	if old.DefaultTrafficAllocation != updated.DefaultTrafficAllocation {
		v := updated.DefaultTrafficAllocation
		u.DefaultTrafficAllocation = &v
	}
	if old.MinimumSegmentSize != updated.MinimumSegmentSize {
		v := updated.MinimumSegmentSize
		u.MinimumSegmentSize = &v
	}
	if old.CrossTestIsolationLevel != updated.CrossTestIsolationLevel {
		v := updated.CrossTestIsolationLevel
		u.CrossTestIsolationLevel = &v
	}
	if old.HighUtilizationPercent != updated.HighUtilizationPercent {
		v := updated.HighUtilizationPercent
		u.HighUtilizationPercent = &v
	}
	if old.HighRequestPercent != updated.HighRequestPercent {
		v := updated.HighRequestPercent
		u.HighRequestPercent = &v
	}
	return u
}

// Empty reports whether the update changes nothing.
func (u EngineUpdate) Empty() bool {
	return u.MaxSimultaneousTests == nil &&
		u.DefaultTrafficAllocation == nil &&
		u.MinimumSegmentSize == nil &&
		u.CrossTestIsolationLevel == nil &&
		u.HighUtilizationPercent == nil &&
		u.HighRequestPercent == nil
}
