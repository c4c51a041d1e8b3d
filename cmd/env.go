package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadglass/internal/config"
	"github.com/sells-group/leadglass/internal/lens"
	"github.com/sells-group/leadglass/internal/model"
	"github.com/sells-group/leadglass/internal/store"
	"github.com/sells-group/leadglass/internal/trial"
)

// env bundles the shared dependencies commands need: the store, the
// calibration registry, and the current promoted scoring standard.
type env struct {
	Store    store.Store
	Lenses   *lens.Registry
	Standard model.BranchConfig
}

func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, err
	}

	registry, err := config.LoadCalibrations(cfg.Lens.CalibrationsFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	// The persisted standard wins over config; with neither present the
	// built-in default applies.
	current := trial.DefaultStandard()
	if cfg.Lens.Default != "" {
		current.Lens = cfg.Lens.Default
	}
	persisted, err := st.GetStandard(ctx)
	if err != nil {
		st.Close()
		return nil, err
	}
	if persisted != nil {
		current = *persisted
	}

	return &env{Store: st, Lenses: registry, Standard: current}, nil
}

func openStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	case "", "sqlite":
		return store.NewSQLite(cfg.Store.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

func (e *env) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close", zap.Error(err))
	}
}

// calibrationFor resolves a branch configuration to a concrete
// calibration, applying any weight or threshold overrides it carries.
func (e *env) calibrationFor(bc model.BranchConfig) lens.Calibration {
	cal := e.Lenses.Resolve(bc.Lens)
	if v, ok := bc.Weights["psi_intent"]; ok {
		cal.Weights.Intent = v
	}
	if v, ok := bc.Weights["rho_authority"]; ok {
		cal.Weights.Authority = v
	}
	if v, ok := bc.Weights["q_urgency"]; ok {
		cal.Weights.Urgency = v
	}
	if v, ok := bc.Weights["f_fit"]; ok {
		cal.Weights.Fit = v
	}
	if bc.AuthorityThreshold > 0 {
		cal.AuthorityThreshold = bc.AuthorityThreshold
	}
	return cal
}

// loadEngine builds a trial engine over the in-memory standard, seeded
// with all persisted trials.
func (e *env) loadEngine(ctx context.Context) (*trial.Engine, error) {
	engine := trial.NewEngine(trial.NewMemoryStandards(e.Standard))
	trials, err := e.Store.ListTrials(ctx)
	if err != nil {
		return nil, err
	}
	engine.Load(trials)
	return engine, nil
}
