// Package lens implements the dimensional perception engine that scores
// leads along intent, authority, urgency, and fit.
package lens

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// Weights holds the per-dimension weights of a calibration. They are
// expected to sum to 1.
type Weights struct {
	Intent    float64 `json:"psi_intent" yaml:"psi_intent"`
	Authority float64 `json:"rho_authority" yaml:"rho_authority"`
	Urgency   float64 `json:"q_urgency" yaml:"q_urgency"`
	Fit       float64 `json:"f_fit" yaml:"f_fit"`
}

// Sum returns the total of all dimension weights.
func (w Weights) Sum() float64 {
	return w.Intent + w.Authority + w.Urgency + w.Fit
}

// Calibration is a named weight set plus tier thresholds applied by the
// lens. Unknown calibration names fall back to DefaultCalibration.
type Calibration struct {
	Name               string  `json:"name" yaml:"name"`
	Weights            Weights `json:"weights" yaml:"weights"`
	AuthorityThreshold float64 `json:"authority_threshold" yaml:"authority_threshold"`
}

// DefaultCalibration returns the fallback weight set used when a
// requested calibration name is unknown.
func DefaultCalibration() Calibration {
	return Calibration{
		Name:               "default",
		Weights:            Weights{Intent: 0.25, Authority: 0.30, Urgency: 0.25, Fit: 0.20},
		AuthorityThreshold: 0.5,
	}
}

// builtinCalibrations are the per-vertical weight sets shipped with the
// engine. Additional calibrations can be layered in from config.
func builtinCalibrations() map[string]Calibration {
	return map[string]Calibration{
		"enterprise_saas": {
			Name:               "enterprise_saas",
			Weights:            Weights{Intent: 0.20, Authority: 0.35, Urgency: 0.20, Fit: 0.25},
			AuthorityThreshold: 0.6,
		},
		"smb_tech": {
			Name:               "smb_tech",
			Weights:            Weights{Intent: 0.30, Authority: 0.20, Urgency: 0.30, Fit: 0.20},
			AuthorityThreshold: 0.4,
		},
		"federal_gov": {
			Name:               "federal_gov",
			Weights:            Weights{Intent: 0.25, Authority: 0.25, Urgency: 0.15, Fit: 0.35},
			AuthorityThreshold: 0.5,
		},
		"healthcare": {
			Name:               "healthcare",
			Weights:            Weights{Intent: 0.20, Authority: 0.30, Urgency: 0.20, Fit: 0.30},
			AuthorityThreshold: 0.55,
		},
	}
}

// Registry resolves calibration names to calibrations.
type Registry struct {
	calibrations map[string]Calibration
}

// NewRegistry returns a registry seeded with the built-in calibrations,
// with extras (e.g. loaded from a YAML file) layered on top.
func NewRegistry(extras ...Calibration) *Registry {
	r := &Registry{calibrations: builtinCalibrations()}
	for _, c := range extras {
		if c.Name != "" {
			r.calibrations[c.Name] = c
		}
	}
	return r
}

// Resolve returns the named calibration, or the default when the name
// is unknown or empty.
func (r *Registry) Resolve(name string) Calibration {
	if c, ok := r.calibrations[name]; ok {
		return c
	}
	def := DefaultCalibration()
	if name != "" {
		def.Name = name
	}
	return def
}

// Names returns the registered calibration names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.calibrations))
	for name := range r.calibrations {
		names = append(names, name)
	}
	return names
}

// ValidateCalibration checks that a calibration is internally
// consistent before use.
func ValidateCalibration(c Calibration) error {
	var errs []string

	for name, w := range map[string]float64{
		"psi_intent":    c.Weights.Intent,
		"rho_authority": c.Weights.Authority,
		"q_urgency":     c.Weights.Urgency,
		"f_fit":         c.Weights.Fit,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s must be >= 0", name))
		}
	}

	sum := c.Weights.Sum()
	if sum <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}
	if math.Abs(sum-1) > 0.01 {
		errs = append(errs, fmt.Sprintf("weights should sum to 1, got %.3f", sum))
	}

	if c.AuthorityThreshold < 0 || c.AuthorityThreshold > 1 {
		errs = append(errs, "authority_threshold must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("lens: calibration %q invalid: %s", c.Name, strings.Join(errs, "; "))
	}
	return nil
}
