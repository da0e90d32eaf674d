package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/viant/gatekeep/model"
)

// DefaultTTL is used when the configuration leaves it unset.
const DefaultTTL = 24 * time.Hour

// Mode controls whether calls to an operation are gated.
type Mode string

// Gating modes.
const (
	ModeNone        Mode = "none"        // never gated
	ModeConditional Mode = "conditional" // gated when a sensitive argument differs from its default
	ModeAlways      Mode = "always"      // gated on every call
)

// IsValid returns true for a known mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeNone, ModeConditional, ModeAlways:
		return true
	}
	return false
}

// Argument declares a sensitive argument of an operation.
type Argument struct {
	Name string `json:"name" yaml:"name"`
	// Default is the value that keeps a conditional operation ungated.
	Default interface{} `json:"default,omitempty" yaml:"default,omitempty"`
	// Redact replaces the value before it is stored or logged.
	Redact bool `json:"redact,omitempty" yaml:"redact,omitempty"`
}

// Operation is the gate configuration of a single operation.
type Operation struct {
	Mode      Mode           `json:"mode" yaml:"mode"`
	Sensitive []*Argument    `json:"sensitive,omitempty" yaml:"sensitive,omitempty"`
	Redact    []string       `json:"redact,omitempty" yaml:"redact,omitempty"`
	RiskTier  model.RiskTier `json:"riskTier,omitempty" yaml:"riskTier,omitempty"`
	TTL       time.Duration  `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// Config represents the declarative, serialisable gate configuration.
type Config struct {
	DefaultTTL time.Duration         `json:"defaultTTL,omitempty" yaml:"defaultTTL,omitempty"`
	Operations map[string]*Operation `json:"operations,omitempty" yaml:"operations,omitempty"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.DefaultTTL < 0 {
		return fmt.Errorf("invalid defaultTTL: %v", c.DefaultTTL)
	}
	for name, op := range c.Operations {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("operation name was empty")
		}
		if op == nil {
			return fmt.Errorf("operation %v: configuration was empty", name)
		}
		if op.Mode != "" && !op.Mode.IsValid() {
			return fmt.Errorf("operation %v: invalid mode %q", name, op.Mode)
		}
		if op.RiskTier != "" && !op.RiskTier.IsValid() {
			return fmt.Errorf("operation %v: invalid risk tier %q", name, op.RiskTier)
		}
		if op.TTL < 0 {
			return fmt.Errorf("operation %v: invalid ttl: %v", name, op.TTL)
		}
		for i, arg := range op.Sensitive {
			if arg == nil || strings.TrimSpace(arg.Name) == "" {
				return fmt.Errorf("operation %v: sensitive argument[%d] has no name", name, i)
			}
		}
	}
	return nil
}
