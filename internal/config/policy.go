package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EscalationPolicy is the optional YAML override for escalation settings.
// Zero values leave the environment configuration untouched.
type EscalationPolicy struct {
	Interval            string `yaml:"interval"`
	CTOEmail            string `yaml:"cto_email"`
	DefaultTimeoutHours int    `yaml:"default_timeout_hours"`
	LeaseTTL            string `yaml:"lease_ttl"`
	Enabled             *bool  `yaml:"enabled"`

	interval time.Duration
	leaseTTL time.Duration
}

// LoadEscalationPolicy reads and validates a policy file.
func LoadEscalationPolicy(path string) (*EscalationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read escalation policy: %w", err)
	}

	var policy EscalationPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse escalation policy: %w", err)
	}

	policy.CTOEmail = os.ExpandEnv(policy.CTOEmail)

	if policy.Interval != "" {
		if policy.interval, err = parsePositiveDuration(policy.Interval); err != nil {
			return nil, fmt.Errorf("escalation policy interval: %w", err)
		}
	}
	if policy.LeaseTTL != "" {
		if policy.leaseTTL, err = parsePositiveDuration(policy.LeaseTTL); err != nil {
			return nil, fmt.Errorf("escalation policy lease_ttl: %w", err)
		}
	}
	if policy.DefaultTimeoutHours < 0 {
		return nil, fmt.Errorf("escalation policy default_timeout_hours must not be negative")
	}

	return &policy, nil
}

// Apply merges the policy into cfg.
func (p *EscalationPolicy) Apply(cfg *EscalationConfig) {
	if p.interval > 0 {
		cfg.Interval = p.interval
	}
	if p.leaseTTL > 0 {
		cfg.LeaseTTL = p.leaseTTL
	}
	if p.CTOEmail != "" {
		cfg.CTOEmail = p.CTOEmail
	}
	if p.DefaultTimeoutHours > 0 {
		cfg.DefaultTimeoutHours = p.DefaultTimeoutHours
	}
	if p.Enabled != nil {
		cfg.Enabled = *p.Enabled
	}
}

func parsePositiveDuration(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}
