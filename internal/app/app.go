package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/mockassist/mockassist/internal/config"
	"github.com/mockassist/mockassist/internal/utils"
	"github.com/mockassist/mockassist/pkg/scenario"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, the simulated clock, router, and server lifecycle.
type Application struct {
	cfg    config.Application
	deps   *Dependencies
	router *mux.Router
	srv    *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// New builds the application from an already loaded configuration and
// replays the configured scenario, if any.
func New(cfg config.Application) (*Application, error) {
	start, err := cfg.SimulationStart(utils.SystemClock{}.Now())
	if err != nil {
		return nil, err
	}
	clock := utils.NewSimulatedClock(start)

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps := BuildDependencies(cfg, clock)

	if cfg.Simulation.Scenario != "" {
		sc, err := scenario.Load(cfg.Simulation.Scenario)
		if err != nil {
			return nil, err
		}
		if _, err := deps.ScenarioPlayer.Run(context.Background(), sc); err != nil {
			return nil, err
		}
	}

	SetupMiddleware(r, deps)
	RegisterRoutes(r, deps)

	srv := &http.Server{
		Handler:      r,
		Addr:         cfg.Addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, deps: deps, router: r, srv: srv}, nil
}

// Run starts the HTTP server and blocks.
func (a *Application) Run() error {
	log.Infof("Starting server on %s, simulated time %s", a.srv.Addr, a.deps.Clock.Now().Format(time.RFC3339))
	return a.srv.ListenAndServe()
}
