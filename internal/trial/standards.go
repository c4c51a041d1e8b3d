// Package trial runs paired classic/experimental scoring trials and
// promotes winning configurations to become the current standard.
package trial

import (
	"sync"
	"time"

	"github.com/sells-group/leadglass/internal/model"
)

// StandardStore holds the process-wide "current standard" scoring
// configuration and the history of replaced standards. Modeled as an
// explicit dependency rather than a hidden global so callers control
// versioning and persistence.
type StandardStore interface {
	Current() model.BranchConfig
	Replace(next model.BranchConfig, record model.StandardRecord) error
	History() []model.StandardRecord
}

// DefaultStandard returns the configuration used before any promotion.
func DefaultStandard() model.BranchConfig {
	return model.BranchConfig{
		Lens: "enterprise_saas",
		Weights: map[string]float64{
			"psi_intent":    0.25,
			"rho_authority": 0.30,
			"q_urgency":     0.25,
			"f_fit":         0.20,
		},
		Approach: "classic",
	}
}

// MemoryStandards is an in-memory StandardStore.
type MemoryStandards struct {
	mu      sync.Mutex
	current model.BranchConfig
	history []model.StandardRecord
}

// NewMemoryStandards returns a MemoryStandards seeded with the given
// configuration, or the default when zero-valued.
func NewMemoryStandards(current model.BranchConfig) *MemoryStandards {
	if current.Lens == "" && len(current.Weights) == 0 {
		current = DefaultStandard()
	}
	return &MemoryStandards{current: current}
}

func (s *MemoryStandards) Current() model.BranchConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *MemoryStandards) Replace(next model.BranchConfig, record model.StandardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ReplacedAt.IsZero() {
		record.ReplacedAt = time.Now().UTC()
	}
	s.history = append(s.history, record)
	s.current = next
	return nil
}

func (s *MemoryStandards) History() []model.StandardRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.StandardRecord, len(s.history))
	copy(out, s.history)
	return out
}
