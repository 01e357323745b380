// Public domain.

package pcprog

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/precover/internal/pcloop"
)

// Config is the precover.toml file.  Every key is optional; absent keys
// keep the defaults below.  Angles in the file are arc seconds, times
// are MJD.
type Config struct {
	Threshold    float64 `toml:"threshold"`     // acceptance, sigma units
	DemoteFactor float64 `toml:"demote_factor"` // demotion boundary multiplier, > 1
	AcceptEqual  bool    `toml:"accept_equal"`  // accept at exactly the threshold
	Epsilon      float64 `toml:"epsilon"`       // convergence improvement floor
	MaxIter      int     `toml:"max_iter"`
	MaxRChi2     float64 `toml:"max_rchi2"` // fit divergence guard, 0 disables

	RadiusScale float64 `toml:"radius_scale"` // multiplies estimate uncertainty
	RadiusMin   float64 `toml:"radius_min"`   // arc seconds
	RadiusMax   float64 `toml:"radius_max"`   // arc seconds

	MinMJD float64 `toml:"min_mjd"` // search window
	MaxMJD float64 `toml:"max_mjd"`

	ObsErr     float64            `toml:"obserr"`      // default per-obs error, arc seconds
	ObsErrSite map[string]float64 `toml:"obserr_site"` // per-obscode overrides

	Datasets   []string `toml:"datasets"`   // empty means all
	Repeatable bool     `toml:"repeatable"` // constant PRNG seeding
}

// DefaultConfig mirrors the knobs of iterative precovery runs: a 2 sigma
// acceptance gate, demotion half again beyond it, and a generous but
// bounded search radius.
func DefaultConfig() Config {
	return Config{
		Threshold:    2,
		DemoteFactor: 1.5,
		Epsilon:      .05,
		MaxIter:      10,
		MaxRChi2:     10,
		RadiusScale:  3,
		RadiusMin:    1,
		RadiusMax:    600,
		MinMJD:       0,
		MaxMJD:       88069, // year 2100
		ObsErr:       1,
	}
}

// LoadConfig decodes path over the defaults.  An empty path returns the
// defaults unchanged.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxIter < 1 {
		return fmt.Errorf("config: max_iter %d must be at least 1", c.MaxIter)
	}
	if !(c.DemoteFactor > 1) {
		return fmt.Errorf("config: demote_factor %g must be > 1", c.DemoteFactor)
	}
	if c.ObsErr > 10 {
		return fmt.Errorf("config: obserr > 10 arc seconds not allowed")
	}
	for code, oe := range c.ObsErrSite {
		if oe > 10 {
			return fmt.Errorf("config: obserr for site %s > 10 arc seconds not allowed", code)
		}
	}
	if c.MinMJD >= c.MaxMJD {
		return fmt.Errorf("config: min_mjd %g not before max_mjd %g", c.MinMJD, c.MaxMJD)
	}
	return nil
}

// obsErr resolves the astrometric error for an obscode, site override
// first, then the default.
func (c Config) obsErr(code string) unit.Angle {
	if oe, ok := c.ObsErrSite[code]; ok {
		return unit.AngleFromSec(oe)
	}
	return unit.AngleFromSec(c.ObsErr)
}

// policy builds the outlier policy from the config.
func (c Config) policy() pcloop.Policy {
	return pcloop.Policy{
		Thresh:       c.Threshold,
		DemoteFactor: c.DemoteFactor,
		AcceptEqual:  c.AcceptEqual,
	}
}

// window builds the search window from the config.
func (c Config) window() pcloop.TimeWindow {
	return pcloop.TimeWindow{First: c.MinMJD, Last: c.MaxMJD}
}

// datasets builds the dataset filter, nil when unrestricted.
func (c Config) datasets() map[string]bool {
	if len(c.Datasets) == 0 {
		return nil
	}
	m := make(map[string]bool, len(c.Datasets))
	for _, d := range c.Datasets {
		m[d] = true
	}
	return m
}
