package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"selinfer/internal/batch"
	"selinfer/internal/llm"
	"selinfer/internal/rationale"
	"selinfer/internal/sel"
	"selinfer/internal/validation"
)

type skillResult struct {
	SkillType         sel.Skill       `json:"skill_type"`
	Score             float64         `json:"score"`
	Confidence        float64         `json:"confidence"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	ModelVersion      string          `json:"model_version"`
	InferenceTimeMS   float64         `json:"inference_time_ms"`
	Evidence          []sel.Evidence  `json:"evidence"`
	Rationale         sel.Rationale   `json:"rationale"`
}

type inferResponse struct {
	StudentID            string        `json:"student_id"`
	Skills               []skillResult `json:"skills"`
	TotalInferenceTimeMS float64       `json:"total_inference_time_ms"`
	Timestamp            string        `json:"timestamp"`
}

func (s *Server) handleInferAllSkills(w http.ResponseWriter, r *http.Request) {
	s.runInference(w, r, sel.Skills)
}

func (s *Server) handleInferOneSkill(w http.ResponseWriter, r *http.Request) {
	skillParam, err := validation.Skill(r.PathValue("skill"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	skill := sel.Skill(skillParam)
	if !skill.Valid() {
		respondError(w, http.StatusBadRequest, errors.New("unknown skill"))
		return
	}
	s.runInference(w, r, []sel.Skill{skill})
}

func (s *Server) runInference(w http.ResponseWriter, r *http.Request, skills []sel.Skill) {
	ctx := r.Context()
	studentID, err := validation.StudentID(r.PathValue("student_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	results := make([]skillResult, 0, len(skills))
	for _, skill := range skills {
		pred, err := s.engine.Infer(ctx, studentID, skill)
		if err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
		assessment, err := s.fuser.Fuse(ctx, studentID, pred)
		if err != nil {
			respondError(w, statusFromError(err), err)
			return
		}
		rat := s.generator.Generate(ctx, rationale.Input{
			Skill:           skill,
			FusedScore:      assessment.FusedScore,
			FusedConfidence: assessment.FusedConfidence,
			Evidence:        assessment.TopEvidence,
		})
		results = append(results, skillResult{
			SkillType:         skill,
			Score:             assessment.FusedScore,
			Confidence:        assessment.FusedConfidence,
			FeatureImportance: pred.FeatureImportance,
			ModelVersion:      assessment.ModelVersion,
			InferenceTimeMS:   pred.LatencyMS,
			Evidence:          assessment.TopEvidence,
			Rationale:         rat,
		})
	}

	respondJSON(w, http.StatusOK, inferResponse{
		StudentID:            studentID,
		Skills:               results,
		TotalInferenceTimeMS: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:            time.Now().UTC().Format(time.RFC3339),
	})
}

type batchRequest struct {
	StudentIDs []string `json:"student_ids"`
	Skill      sel.Skill `json:"skill"`
}

type batchItemView struct {
	StudentID    string      `json:"student_id"`
	Status       string      `json:"status"`
	Skills       []skillResult `json:"skills,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
}

type batchResponse struct {
	BatchID            string          `json:"batch_id"`
	TotalStudents      int             `json:"total_students"`
	Successful         int             `json:"successful"`
	Failed             int             `json:"failed"`
	Results            []batchItemView `json:"results"`
	TotalInferenceTimeMS float64       `json:"total_inference_time_ms"`
}

func (s *Server) handleInferBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.StudentIDs) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("student_ids must not be empty"))
		return
	}
	if len(req.StudentIDs) > batch.MaxStudents {
		respondError(w, http.StatusBadRequest, errors.New("student_ids exceeds the 100-id batch limit"))
		return
	}
	if !req.Skill.Valid() {
		respondError(w, http.StatusBadRequest, errors.New("unknown skill"))
		return
	}

	result := s.dispatcher.Dispatch(r.Context(), req.StudentIDs, req.Skill, s.batchDefaults)

	views := make([]batchItemView, 0, len(result.Results))
	for _, item := range result.Results {
		if item.Error != "" {
			views = append(views, batchItemView{StudentID: item.StudentID, Status: "error", ErrorMessage: item.Error})
			continue
		}
		views = append(views, batchItemView{
			StudentID: item.StudentID,
			Status:    "success",
			Skills: []skillResult{{
				SkillType:         item.Skill,
				Score:             item.Assessment.FusedScore,
				Confidence:        item.Assessment.FusedConfidence,
				ModelVersion:      item.Assessment.ModelVersion,
				Evidence:          item.Assessment.TopEvidence,
				Rationale:         *item.Rationale,
			}},
		})
	}

	respondJSON(w, http.StatusOK, batchResponse{
		BatchID:              result.BatchID,
		TotalStudents:        result.TotalCount,
		Successful:           result.SuccessCount,
		Failed:               result.ErrorCount,
		Results:              views,
		TotalInferenceTimeMS: result.WallClockMS,
	})
}

func (s *Server) handleGetFusionWeights(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.fusion.Get())
}

func (s *Server) handleGetSkillWeights(w http.ResponseWriter, r *http.Request) {
	skillParam, err := validation.Skill(r.PathValue("skill"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	skill := sel.Skill(skillParam)
	weights, ok := s.fusion.Get().Weights[skill]
	if !ok {
		respondError(w, http.StatusNotFound, errors.New("unknown skill"))
		return
	}
	respondJSON(w, http.StatusOK, weights)
}

func (s *Server) handlePutSkillWeights(w http.ResponseWriter, r *http.Request) {
	skillParam, err := validation.Skill(r.PathValue("skill"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	skill := sel.Skill(skillParam)
	if !skill.Valid() {
		respondError(w, http.StatusBadRequest, errors.New("unknown skill"))
		return
	}

	var weights sel.FusionWeights
	if err := json.NewDecoder(r.Body).Decode(&weights); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	persist := r.URL.Query().Get("persist") != "false"

	if err := s.fusion.SetSkillWeights(skill, weights, persist); err != nil {
		status := http.StatusInternalServerError
		var invalid *sel.InvalidConfigError
		if errors.As(err, &invalid) {
			status = http.StatusBadRequest
		}
		respondError(w, status, err)
		return
	}

	respondJSON(w, http.StatusOK, s.fusion.Get().Weights[skill])
}

func (s *Server) handleReloadFusionWeights(w http.ResponseWriter, r *http.Request) {
	if err := s.fusion.Reload(); err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	respondJSON(w, http.StatusOK, s.fusion.Get())
}

func (s *Server) handleMetricsRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	respondJSON(w, http.StatusOK, map[string]any{"entries": s.sink.Recent(limit)})
}

func (s *Server) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.sink.Summary())
}

type tokenMetricsResponse struct {
	Totals        []llm.TokenTotal `json:"totals"`
	WindowApplied string           `json:"window_applied,omitempty"`
}

// handleMetricsTokens reports cumulative LLM token usage by model, the cost
// signal for the rationale generator's C8 calls. An optional ?window=
// (parsed with time.ParseDuration, e.g. "1h") narrows the totals to recent
// usage; omitted returns process-lifetime totals, and an unparseable value
// is rejected with 400.
func (s *Server) handleMetricsTokens(w http.ResponseWriter, r *http.Request) {
	windowParam := r.URL.Query().Get("window")
	if windowParam == "" {
		respondJSON(w, http.StatusOK, tokenMetricsResponse{Totals: llm.TokenTotalsSnapshot()})
		return
	}
	window, err := time.ParseDuration(windowParam)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("window must be a valid duration, e.g. \"1h\""))
		return
	}
	totals, applied := llm.TokenTotalsForWindow(window)
	respondJSON(w, http.StatusOK, tokenMetricsResponse{Totals: totals, WindowApplied: applied.String()})
}

type healthResponse struct {
	Status        string `json:"status"`
	ModelsLoaded  int    `json:"models_loaded"`
	LLMKeyPresent bool   `json:"llm_key_present"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	llmKeyPresent := false
	if s.secrets != nil {
		if v, err := s.secrets.Resolve(r.Context(), "LLM_API_KEY"); err == nil && v != "" {
			llmKeyPresent = true
		}
	}
	status := "ok"
	if s.registry.Count() == 0 {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, healthResponse{
		Status:        status,
		ModelsLoaded:  s.registry.Count(),
		LLMKeyPresent: llmKeyPresent,
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]any{"error": err.Error()})
}

func statusFromError(err error) int {
	var upstream *sel.UpstreamUnavailable
	var featureShape *sel.FeatureShapeError
	var prediction *sel.PredictionFailure
	switch {
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.As(err, &featureShape):
		return http.StatusUnprocessableEntity
	case errors.As(err, &prediction):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

