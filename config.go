package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/gatekeep/internal/envexpr"
	"github.com/viant/gatekeep/internal/seal"
	"github.com/viant/gatekeep/logging"
	"github.com/viant/gatekeep/policy"
	"github.com/viant/gatekeep/service/dao/sqlstore"
	"github.com/viant/gatekeep/service/event"
	"github.com/viant/gatekeep/service/messaging"
	"github.com/viant/gatekeep/service/redact"
	"github.com/viant/gatekeep/service/sweeper"
	"github.com/viant/gatekeep/tracing"
	"gopkg.in/yaml.v3"
)

// DriverMemory keeps all state in process.
const DriverMemory = "memory"

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON or YAML. The zero value is useful: every section
// falls back to its package default.
type Config struct {
	Store     sqlstore.Config `json:"store" yaml:"store"`
	Gate      policy.Config   `json:"gate" yaml:"gate"`
	Sweeper   SweeperConfig   `json:"sweeper" yaml:"sweeper"`
	Redaction redact.Config   `json:"redaction" yaml:"redaction"`
	Seal      SealConfig      `json:"seal" yaml:"seal"`
	Tracing   tracing.Config  `json:"tracing" yaml:"tracing"`
	Log       logging.Config  `json:"log" yaml:"log"`
	Events    event.Config    `json:"events" yaml:"events"`
}

// SweeperConfig controls the background expiry sweep.
type SweeperConfig struct {
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Disabled bool          `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// SealConfig holds the key used to seal raw arguments of redacted actions.
type SealConfig struct {
	// Key is 32 bytes encoded as hex or base64; empty disables sealing.
	Key string `json:"key,omitempty" yaml:"key,omitempty"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() *Config {
	return &Config{
		Store:   sqlstore.Config{Driver: DriverMemory},
		Gate:    policy.Config{DefaultTTL: policy.DefaultTTL},
		Sweeper: SweeperConfig{Interval: sweeper.DefaultConfig().Interval},
		Log:     logging.DefaultConfig(),
		Events:  *event.DefaultConfig(),
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs []error
	switch driver := strings.ToLower(c.Store.Driver); driver {
	case "", DriverMemory:
	default:
		if _, err := sqlstore.ParseDialect(driver); err != nil {
			errs = append(errs, err)
		} else if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for driver %v", driver))
		}
	}
	if err := c.Gate.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gate: %w", err))
	}
	if c.Sweeper.Interval < 0 {
		errs = append(errs, fmt.Errorf("sweeper.interval must be >= 0"))
	}
	if _, err := redact.New(c.Redaction); err != nil {
		errs = append(errs, fmt.Errorf("redaction: %w", err))
	}
	if c.Seal.Key != "" {
		if _, err := seal.ParseKey(c.Seal.Key); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch c.Events.Vendor {
	case "", messaging.VendorMemory, messaging.VendorFS:
	default:
		errs = append(errs, fmt.Errorf("events: unsupported vendor %v", c.Events.Vendor))
	}
	if c.Events.Buffer < 0 {
		errs = append(errs, fmt.Errorf("events.buffer must be >= 0"))
	}
	return errors.Join(errs...)
}

// LoadConfig reads a YAML configuration from any afs supported URL, expanding
// ${env.NAME} references first. Missing sections keep DefaultConfig values.
func LoadConfig(ctx context.Context, URL string, fs ...afs.Service) (*Config, error) {
	var service afs.Service
	if len(fs) > 0 && fs[0] != nil {
		service = fs[0]
	} else {
		service = afs.New()
	}
	data, err := service.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %v: %w", URL, err)
	}
	ret := DefaultConfig()
	if err = yaml.Unmarshal([]byte(envexpr.Expand(string(data))), ret); err != nil {
		return nil, fmt.Errorf("failed to decode config %v: %w", URL, err)
	}
	if err = ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}
