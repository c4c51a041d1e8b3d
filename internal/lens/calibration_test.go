package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Resolve(t *testing.T) {
	r := NewRegistry()

	c := r.Resolve("enterprise_saas")
	assert.Equal(t, "enterprise_saas", c.Name)
	assert.InDelta(t, 0.35, c.Weights.Authority, 1e-9)
	assert.InDelta(t, 0.6, c.AuthorityThreshold, 1e-9)

	// Unknown names fall back to the default weights but keep the name
	// so the decision records which lens was asked for.
	c = r.Resolve("made_up_vertical")
	assert.Equal(t, "made_up_vertical", c.Name)
	assert.Equal(t, DefaultCalibration().Weights, c.Weights)

	c = r.Resolve("")
	assert.Equal(t, "default", c.Name)
}

func TestRegistry_Extras(t *testing.T) {
	custom := Calibration{
		Name:               "smb_tech",
		Weights:            Weights{Intent: 0.4, Authority: 0.2, Urgency: 0.2, Fit: 0.2},
		AuthorityThreshold: 0.3,
	}
	r := NewRegistry(custom, Calibration{Name: ""})

	// Extras override built-ins of the same name.
	c := r.Resolve("smb_tech")
	assert.InDelta(t, 0.4, c.Weights.Intent, 1e-9)
	assert.InDelta(t, 0.3, c.AuthorityThreshold, 1e-9)

	// Nameless extras are dropped.
	assert.NotContains(t, r.Names(), "")
	assert.Contains(t, r.Names(), "federal_gov")
}

func TestValidateCalibration(t *testing.T) {
	for name, c := range builtinCalibrations() {
		require.NoError(t, ValidateCalibration(c), name)
	}
	require.NoError(t, ValidateCalibration(DefaultCalibration()))

	tests := []struct {
		name    string
		mutate  func(*Calibration)
		wantErr string
	}{
		{
			name:    "negative weight",
			mutate:  func(c *Calibration) { c.Weights.Urgency = -0.1 },
			wantErr: "q_urgency must be >= 0",
		},
		{
			name:    "weights off unity",
			mutate:  func(c *Calibration) { c.Weights.Fit = 0.5 },
			wantErr: "weights should sum to 1",
		},
		{
			name: "zero sum",
			mutate: func(c *Calibration) {
				c.Weights = Weights{}
			},
			wantErr: "weight sum must be > 0",
		},
		{
			name:    "threshold out of range",
			mutate:  func(c *Calibration) { c.AuthorityThreshold = 1.5 },
			wantErr: "authority_threshold must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultCalibration()
			tt.mutate(&c)
			err := ValidateCalibration(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
