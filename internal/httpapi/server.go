// Package httpapi exposes the HTTP/JSON surface over the inference
// pipeline: single and batch inference, fusion weight administration,
// metrics, and a health check.
package httpapi

import (
	"net/http"
	"time"

	"selinfer/internal/batch"
	"selinfer/internal/evidence"
	"selinfer/internal/fusionconfig"
	"selinfer/internal/inference"
	"selinfer/internal/metrics"
	"selinfer/internal/models"
	"selinfer/internal/rationale"
	"selinfer/internal/secrets"
)

// Server wires the pipeline components to the HTTP surface.
type Server struct {
	engine        *inference.Engine
	fuser         *evidence.Fuser
	generator     *rationale.Generator
	dispatcher    *batch.Dispatcher
	fusion        *fusionconfig.Store
	sink          *metrics.Sink
	registry      *models.Registry
	secrets       *secrets.Resolver
	batchDefaults batch.Options
	mux           *http.ServeMux
}

// Deps bundles every collaborator the server needs. BatchConcurrency and
// BatchDeadline default to the dispatcher's own defaults when zero.
type Deps struct {
	Engine           *inference.Engine
	Fuser            *evidence.Fuser
	Generator        *rationale.Generator
	Dispatcher       *batch.Dispatcher
	Fusion           *fusionconfig.Store
	Sink             *metrics.Sink
	Registry         *models.Registry
	Secrets          *secrets.Resolver
	BatchConcurrency int
	BatchDeadline    time.Duration
}

// NewServer creates the HTTP API server wired to the pipeline collaborators.
func NewServer(d Deps) *Server {
	s := &Server{
		engine:     d.Engine,
		fuser:      d.Fuser,
		generator:  d.Generator,
		dispatcher: d.Dispatcher,
		fusion:     d.Fusion,
		sink:       d.Sink,
		registry:   d.Registry,
		secrets:    d.Secrets,
		batchDefaults: batch.Options{
			Concurrency: d.BatchConcurrency,
			Deadline:    d.BatchDeadline,
		},
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /infer/{student_id}", s.handleInferAllSkills)
	s.mux.HandleFunc("POST /infer/{student_id}/{skill}", s.handleInferOneSkill)
	s.mux.HandleFunc("POST /infer/batch", s.handleInferBatch)

	s.mux.HandleFunc("GET /fusion/weights", s.handleGetFusionWeights)
	s.mux.HandleFunc("GET /fusion/weights/{skill}", s.handleGetSkillWeights)
	s.mux.HandleFunc("PUT /fusion/weights/{skill}", s.handlePutSkillWeights)
	s.mux.HandleFunc("POST /fusion/weights/reload", s.handleReloadFusionWeights)

	s.mux.HandleFunc("GET /metrics", s.handleMetricsRecent)
	s.mux.HandleFunc("GET /metrics/summary", s.handleMetricsSummary)
	s.mux.HandleFunc("GET /metrics/tokens", s.handleMetricsTokens)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}
