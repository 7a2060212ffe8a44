// Package status serves the progress of a run over HTTP.
package status

import (
	"compress/flate"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"

	"github.com/askiada/go-fidder/config"
	"github.com/askiada/go-fidder/pkg/pipeline"
	"github.com/askiada/go-fidder/pkg/pipeline/model"
)

// Steps reports the state of the steps of a run.
type Steps interface {
	Steps() ([]pipeline.StepStatus, error)
	Counts() map[model.StepState]int
}

// Collections reports the size of the output collections.
type Collections interface {
	Sizes() map[string]int
}

// Run is what the status endpoint reports on.
type Run struct {
	ID          string
	Streaming   bool
	StartedAt   time.Time
	Steps       Steps
	Collections Collections
}

// Response is the body of GET /status.
type Response struct {
	RunID     string                  `json:"run_id"`
	Mode      string                  `json:"mode"`
	StartedAt time.Time               `json:"started_at"`
	Uptime    string                  `json:"uptime"`
	Steps     map[model.StepState]int `json:"steps"`
	Outputs   map[string]int          `json:"outputs"`
}

// NewRouter returns a chi router with the status endpoints registered.
func NewRouter(cfg config.Config, run *Run) chi.Router {
	r := chi.NewRouter()

	r.Use(Logger(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(flate.DefaultCompression))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	})
	r.Use(c.Handler)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/status", statusHandler(&cfg, run))
	r.Get("/steps", stepsHandler(&cfg, run))

	return r
}

func statusHandler(cfg *config.Config, run *Run) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mode := "batch"
		if run.Streaming {
			mode = "streaming"
		}

		render.JSON(w, r, Response{
			RunID:     run.ID,
			Mode:      mode,
			StartedAt: run.StartedAt,
			Uptime:    time.Since(run.StartedAt).Round(time.Second).String(),
			Steps:     run.Steps.Counts(),
			Outputs:   run.Collections.Sizes(),
		})
	}
}

// stepsHandler lists the steps, optionally filtered by state and group (tsId).
func stepsHandler(cfg *config.Config, run *Run) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		steps, err := run.Steps.Steps()
		if err != nil {
			cfg.Logger.Errorf("%+v", err)
			http.Error(w, "An error occurred on the server while processing the request", http.StatusInternalServerError)

			return
		}

		state := model.StepState(r.URL.Query().Get("state"))
		group := r.URL.Query().Get("group")

		res := make([]pipeline.StepStatus, 0, len(steps))
		for _, step := range steps {
			if state != "" && step.State != state {
				continue
			}
			if group != "" && step.Group != group {
				continue
			}
			res = append(res, step)
		}

		render.JSON(w, r, res)
	}
}

// Serve runs the status server until the returned shutdown function is called.
func Serve(cfg config.Config, addr string, run *Run) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg, run),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		cfg.Logger.Infof("status endpoint listening on %s", addr)
		err := srv.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			cfg.Logger.Errorf("status endpoint stopped: %v", err)
		}
	}()

	return func() {
		_ = srv.Close()
	}
}
