package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/leadglass/internal/model"
	"github.com/sells-group/leadglass/internal/qualify"
	"github.com/sells-group/leadglass/internal/trial"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the lead intake webhook server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		engine, err := env.loadEngine(ctx)
		if err != nil {
			return err
		}

		srv := newServer(env, engine)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.routes(cfg.Server.RatePerSecond, cfg.Server.RateBurst),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			httpSrv.Shutdown(context.Background())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server carries request handler dependencies.
type server struct {
	env    *env
	engine *trial.Engine
}

func newServer(e *env, engine *trial.Engine) *server {
	return &server{env: e, engine: engine}
}

func (s *server) routes(perSecond float64, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))
	r.Use(rateLimit(perSecond, burst))

	r.Get("/health", s.handleHealth)
	r.Post("/webhook/lead", s.handleLead)
	r.Get("/trials/{trialID}", s.handleGetTrial)
	r.Get("/patterns", s.handleListPatterns)

	return r
}

// rateLimit applies a global token-bucket limit across all clients.
func rateLimit(perSecond float64, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleLead(w http.ResponseWriter, r *http.Request) {
	var lead model.Lead
	if err := json.NewDecoder(r.Body).Decode(&lead); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if lead.CompanyName == "" {
		http.Error(w, `{"error":"company_name is required"}`, http.StatusBadRequest)
		return
	}
	if lead.ID == "" {
		lead.ID = uuid.New().String()
	}

	// A running trial routes this lead to one of its branches.
	branchCfg := s.env.Standard
	branchName := ""
	active := s.engine.Active()
	if active != nil {
		branchName = s.engine.AssignBranch(active.ID)
		branchCfg = active.Branch(branchName).Config
	}

	q := qualify.New(s.env.calibrationFor(branchCfg), branchName)
	result, err := q.Qualify(&lead)
	if err != nil {
		zap.L().Error("webhook qualification failed",
			zap.String("company", lead.CompanyName),
			zap.Error(err),
		)
		http.Error(w, `{"error":"qualification failed"}`, http.StatusInternalServerError)
		return
	}

	if err := s.env.Store.SaveQualification(r.Context(), result); err != nil {
		zap.L().Error("webhook save failed",
			zap.String("lead_id", lead.ID),
			zap.Error(err),
		)
		http.Error(w, `{"error":"persist failed"}`, http.StatusInternalServerError)
		return
	}

	if active != nil {
		if err := s.engine.RecordQualification(active.ID, branchName, result.Tier); err == nil {
			if t, getErr := s.engine.Get(active.ID); getErr == nil {
				if saveErr := s.env.Store.SaveTrial(r.Context(), t); saveErr != nil {
					zap.L().Warn("webhook trial save failed",
						zap.String("trial_id", active.ID),
						zap.Error(saveErr),
					)
				}
			}
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleGetTrial(w http.ResponseWriter, r *http.Request) {
	trialID := chi.URLParam(r, "trialID")
	t, err := s.env.Store.GetTrial(r.Context(), trialID)
	if err != nil {
		http.Error(w, `{"error":"trial not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.env.Store.ListPatterns(r.Context())
	if err != nil {
		http.Error(w, `{"error":"list patterns failed"}`, http.StatusInternalServerError)
		return
	}
	if patterns == nil {
		patterns = []model.FailurePattern{}
	}
	writeJSON(w, http.StatusOK, patterns)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
