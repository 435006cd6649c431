package server

import (
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/SBRGA/internal/config"
	perrors "github.com/copyleftdev/SBRGA/internal/errors"
	"github.com/copyleftdev/SBRGA/internal/evolution"
	"github.com/copyleftdev/SBRGA/internal/guidance"
	"github.com/copyleftdev/SBRGA/internal/logging"
	"github.com/copyleftdev/SBRGA/internal/metrics"
	"github.com/copyleftdev/SBRGA/internal/painting"
	"github.com/copyleftdev/SBRGA/internal/render"
	"github.com/copyleftdev/SBRGA/internal/store"
	"github.com/copyleftdev/SBRGA/internal/telemetry"
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
	ForRun(runID string) *logging.Logger
}

// RunStore persists runs and their generation statistics.
type RunStore interface {
	CreateRun(ctx context.Context, run store.Run) error
	UpdateRun(ctx context.Context, run store.Run) error
	GetRun(ctx context.Context, id string) (store.Run, bool, error)
	AppendGeneration(ctx context.Context, runID string, g evolution.GenerationStats) error
	ListGenerations(ctx context.Context, runID string) ([]evolution.GenerationStats, error)
}

// RunState represents the state of a painting job.
// It tracks the progress, status, and results of one evolutionary run.
// Fields are guarded by Server.runsMu.
type RunState struct {
	ID          string
	Status      string // "pending", "running", "completed", "failed", "cancelled"
	StartTime   time.Time
	EndTime     *time.Time
	Generation  int
	Progress    float64
	Output      string
	Error       string
	Engine      *evolution.Engine
	Fields      *guidance.Fields
	CancelFunc  context.CancelFunc
	LastUpdated time.Time
}

// PaintRequest starts a painting job. Image paths are read by the server.
type PaintRequest struct {
	Color      string `json:"color"`
	Direction  string `json:"direction"`
	Importance string `json:"importance"`
	// Output file name inside the run directory; defaults to final.png
	Output     string          `json:"output,omitempty"`
	SaveWidth  int             `json:"save_width,omitempty"`
	SaveHeight int             `json:"save_height,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// StatusResponse describes a job.
type StatusResponse struct {
	RunID       string                      `json:"run_id"`
	Status      string                      `json:"status"`
	Progress    float64                     `json:"progress"`
	Generation  int                         `json:"generation"`
	BestScore   *float64                    `json:"best_score,omitempty"`
	Output      string                      `json:"output,omitempty"`
	Error       string                      `json:"error,omitempty"`
	StartTime   string                      `json:"start_time,omitempty"`
	EndTime     string                      `json:"end_time,omitempty"`
	LastUpdate  string                      `json:"last_update,omitempty"`
	History     []evolution.GenerationStats `json:"history,omitempty"`
}

// Server implements the HTTP and JSON-RPC server for the painting service.
// It manages painting jobs and provides endpoints to start, monitor, preview and cancel them.
type Server struct {
	cfg      *config.Config
	logger   Logger
	zap      *zap.Logger
	store    RunStore
	metrics  *metrics.Collector
	renderer render.Renderer

	// Run state management
	runs   map[string]*RunState
	runsMu sync.RWMutex // Protects the runs map and every RunState
	wg     sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records run progress in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithZapLogger sets the logger handed to evolution engines.
func WithZapLogger(l *zap.Logger) Option {
	return func(s *Server) { s.zap = l }
}

// WithRenderer overrides the CPU renderer.
func WithRenderer(r render.Renderer) Option {
	return func(s *Server) { s.renderer = r }
}

// NewServer creates a new server instance with the given config, logger and store.
func NewServer(cfg *config.Config, logger Logger, st RunStore, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		zap:      zap.NewNop(),
		store:    st,
		renderer: render.NewCPU(),
		runs:     make(map[string]*RunState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterRoutes mounts the REST and JSON-RPC endpoints on r.
func (s *Server) RegisterRoutes(r chi.Router) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/paint", s.handlePaint)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/paint/{id}", s.handleCancel)
		r.Get("/paint/{id}/preview.png", s.handlePreview)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

// startRun validates req, registers the run and starts it in the background.
func (s *Server) startRun(req PaintRequest) (map[string]interface{}, error) {
	if req.Color == "" || req.Direction == "" || req.Importance == "" {
		return nil, fmt.Errorf("color, direction and importance are required")
	}

	runCfg := s.cfg.Painting.Evolution()
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &runCfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	if runCfg.Seed == 0 {
		runCfg.Seed = uint64(time.Now().UnixNano())
	}
	if err := runCfg.Validate(); err != nil {
		return nil, err
	}

	fields, err := guidance.LoadFiles(req.Color, req.Direction, req.Importance)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	runDir := filepath.Join(s.cfg.Output.Dir, id)
	name := "final.png"
	if req.Output != "" {
		name = filepath.Base(req.Output)
	}
	output := filepath.Join(runDir, name)

	om, err := telemetry.NewOutputManager(runDir)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := om.WriteParams(telemetry.Params{
		RunID:      id,
		StartedAt:  now.UTC(),
		Inputs:     telemetry.Inputs{Color: req.Color, Direction: req.Direction, Importance: req.Importance},
		Output:     output,
		SaveWidth:  req.SaveWidth,
		SaveHeight: req.SaveHeight,
		Config:     runCfg,
	}); err != nil {
		om.Close()
		return nil, err
	}

	saver := render.NewPNGSaver(s.renderer, fields.Dims, render.SaveDims(fields.Dims, req.SaveWidth, req.SaveHeight))

	ctx, cancel := context.WithCancel(context.Background())
	state := &RunState{
		ID:          id,
		Status:      store.StatusPending,
		StartTime:   now,
		Output:      output,
		Fields:      fields,
		CancelFunc:  cancel,
		LastUpdated: now,
	}

	opts := []evolution.Option{
		evolution.WithLogger(s.zap.With(zap.String("run_id", id))),
		evolution.WithObserver(om),
		evolution.WithObserver(s.progressObserver(ctx, state, runCfg.Generations)),
		evolution.WithCheckpointer(evolution.CheckpointFunc(func(ind *painting.Individual, g int) error {
			return saver.Checkpoint(ind, output, g)
		})),
	}
	if s.metrics != nil {
		opts = append(opts, evolution.WithObserver(s.metrics.Observer(id)))
	}
	state.Engine, err = evolution.NewForFields(fields, s.renderer, runCfg, opts...)
	if err != nil {
		cancel()
		om.Close()
		return nil, err
	}

	if err := s.store.CreateRun(ctx, store.Run{ID: id, Status: store.StatusPending, Config: runCfg, Output: output}); err != nil {
		cancel()
		om.Close()
		return nil, fmt.Errorf("failed to persist run: %w", err)
	}

	s.runsMu.Lock()
	s.runs[id] = state
	s.runsMu.Unlock()

	s.wg.Add(1)
	go s.runPainting(ctx, state, saver, om)

	return map[string]interface{}{
		"run_id": id,
		"status": store.StatusPending,
	}, nil
}

// progressObserver mirrors generation statistics into the run state and the store.
func (s *Server) progressObserver(ctx context.Context, state *RunState, total int) evolution.Observer {
	return evolution.ObserverFunc(func(g evolution.GenerationStats) {
		s.runsMu.Lock()
		state.Generation = g.Generation
		if total > 0 {
			state.Progress = float64(g.Generation) / float64(total)
		}
		state.LastUpdated = time.Now()
		s.runsMu.Unlock()

		if err := s.store.AppendGeneration(ctx, state.ID, g); err != nil {
			s.logger.ForRun(state.ID).ForGeneration(g.Generation).Warn("Persisting generation failed", map[string]interface{}{"error": err.Error()})
		}
	})
}

// runPainting executes the evolutionary run in a goroutine
func (s *Server) runPainting(ctx context.Context, state *RunState, saver *render.PNGSaver, om *telemetry.OutputManager) {
	defer s.wg.Done()
	id := state.ID
	log := s.logger.ForRun(id)

	s.runsMu.Lock()
	state.Status = store.StatusRunning
	state.LastUpdated = time.Now()
	s.runsMu.Unlock()
	s.persist(ctx, store.Run{ID: id, Status: store.StatusRunning})
	if s.metrics != nil {
		s.metrics.RunStarted()
	}

	status, errMsg, score, gens := s.execute(ctx, state, saver, om)
	if err := om.Close(); err != nil {
		log.Warn("Closing run telemetry failed", map[string]interface{}{"error": err.Error()})
	}

	// Persist first so the store never lags the in-memory terminal status.
	s.persist(context.Background(), store.Run{ID: id, Status: status, BestScore: score, Generations: gens, Error: errMsg})
	if s.metrics != nil {
		s.metrics.RunFinished(status)
	}

	now := time.Now()
	s.runsMu.Lock()
	state.Status = status
	state.Error = errMsg
	state.EndTime = &now
	state.LastUpdated = now
	if status == store.StatusCompleted {
		state.Progress = 1
	}
	s.runsMu.Unlock()

	if errMsg != "" {
		log.Error("Painting run failed", map[string]interface{}{"error": errMsg})
		return
	}
	log.Info("Painting run finished", map[string]interface{}{
		"status":      status,
		"best_score":  score,
		"generations": gens,
		"output":      state.Output,
	})
}

func (s *Server) execute(ctx context.Context, state *RunState, saver *render.PNGSaver, om *telemetry.OutputManager) (status, errMsg string, score float64, gens int) {
	result, err := state.Engine.Run(ctx)
	if err != nil {
		return store.StatusFailed, err.Error(), 0, 0
	}
	if err := om.WritePlot(result.History, state.ID); err != nil {
		s.logger.ForRun(state.ID).Warn("Writing fitness plot failed", map[string]interface{}{"error": err.Error()})
	}
	if err := saver.Save(result.Best, state.Output); err != nil {
		return store.StatusFailed, err.Error(), result.Score, result.Generations
	}
	if result.Stopped {
		return store.StatusCancelled, "", result.Score, result.Generations
	}
	return store.StatusCompleted, "", result.Score, result.Generations
}

func (s *Server) persist(ctx context.Context, run store.Run) {
	if err := s.store.UpdateRun(ctx, run); err != nil {
		s.logger.ForRun(run.ID).Warn("Persisting run failed", map[string]interface{}{"error": err.Error()})
	}
}

// runStatus returns the status of a live or persisted run.
func (s *Server) runStatus(ctx context.Context, id string) (*StatusResponse, error) {
	history, err := s.store.ListGenerations(ctx, id)
	if err != nil {
		return nil, err
	}

	s.runsMu.RLock()
	state, live := s.runs[id]
	if live {
		resp := &StatusResponse{
			RunID:      state.ID,
			Status:     state.Status,
			Progress:   state.Progress,
			Generation: state.Generation,
			Output:     state.Output,
			Error:      state.Error,
			StartTime:  state.StartTime.Format(time.RFC3339),
			LastUpdate: state.LastUpdated.Format(time.RFC3339),
			History:    history,
		}
		if state.EndTime != nil {
			resp.EndTime = state.EndTime.Format(time.RFC3339)
		}
		engine := state.Engine
		s.runsMu.RUnlock()

		if best, ok := engine.Best(); ok {
			resp.BestScore = &best.Score
		}
		return resp, nil
	}
	s.runsMu.RUnlock()

	run, ok, err := s.store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run not found")
	}
	resp := &StatusResponse{
		RunID:      run.ID,
		Status:     run.Status,
		Generation: run.Generations,
		Output:     run.Output,
		Error:      run.Error,
		StartTime:  run.CreatedAt.Format(time.RFC3339),
		LastUpdate: run.UpdatedAt.Format(time.RFC3339),
		History:    history,
	}
	if run.Terminal() {
		resp.Progress = 1
		score := run.BestScore
		resp.BestScore = &score
	}
	return resp, nil
}

// cancelRun asks a running job to stop after its current generation.
func (s *Server) cancelRun(id string) error {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	state, exists := s.runs[id]
	if !exists {
		return fmt.Errorf("run not found")
	}

	switch state.Status {
	case store.StatusCompleted, store.StatusFailed, store.StatusCancelled:
		// Already in a terminal state
		return fmt.Errorf("cannot cancel run with status: %s", state.Status)
	}

	state.Engine.Stop()
	state.LastUpdated = time.Now()

	s.logger.ForRun(id).Info("Painting run cancellation requested")
	return nil
}

// Close cancels all running jobs and waits for them to finish.
func (s *Server) Close() error {
	s.runsMu.Lock()
	for _, run := range s.runs {
		if run.CancelFunc != nil {
			run.CancelFunc()
		}
	}
	s.runsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request struct {
		JSONRPC string            `json:"jsonrpc"`
		ID      interface{}       `json:"id"`
		Method  string            `json:"method"`
		Params  []json.RawMessage `json:"params,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, -32700, "Parse error", nil, nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" {
		s.respondWithError(w, -32600, "Invalid Request", request.ID, nil)
		return
	}

	// Route to appropriate handler
	var result interface{}
	var err error

	switch request.Method {
	case "painting.start":
		result, err = s.handleRPCStart(request.Params)
	case "painting.status":
		result, err = s.handleRPCStatus(r.Context(), request.Params)
	case "painting.cancel":
		result, err = s.handleRPCCancel(request.Params)
	default:
		s.respondWithError(w, -32601, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		var perr *rpcParamError
		if perrors.As(err, &perr) {
			s.respondWithError(w, -32602, "Invalid params", request.ID, err)
			return
		}
		s.respondWithError(w, -32000, "Server error", request.ID, err)
		return
	}

	// Send successful response
	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	}
	writeJSON(w, http.StatusOK, response)
}

// rpcParamError marks malformed JSON-RPC parameters.
type rpcParamError struct{ msg string }

func (e *rpcParamError) Error() string { return e.msg }

// firstParam decodes the first positional parameter into v.
func firstParam(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return &rpcParamError{msg: "missing required parameters"}
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return &rpcParamError{msg: fmt.Sprintf("invalid parameters: %v", err)}
	}
	return nil
}

// handleRPCStart handles painting.start.
// Expected parameters: [{"color": "c.png", "direction": "d.png", "importance": "i.png", "config": {...}}]
// Returns: {"run_id": "...", "status": "pending"}
func (s *Server) handleRPCStart(params []json.RawMessage) (interface{}, error) {
	var req PaintRequest
	if err := firstParam(params, &req); err != nil {
		return nil, err
	}
	return s.startRun(req)
}

// handleRPCStatus handles painting.status.
// Expected parameters: [{"run_id": "..."}]
func (s *Server) handleRPCStatus(ctx context.Context, params []json.RawMessage) (interface{}, error) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := firstParam(params, &req); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, &rpcParamError{msg: "run_id is required"}
	}
	return s.runStatus(ctx, req.RunID)
}

// handleRPCCancel handles painting.cancel.
// Expected parameters: [{"run_id": "..."}]
func (s *Server) handleRPCCancel(params []json.RawMessage) (interface{}, error) {
	var req struct {
		RunID string `json:"run_id"`
	}
	if err := firstParam(params, &req); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, &rpcParamError{msg: "run_id is required"}
	}
	if err := s.cancelRun(req.RunID); err != nil {
		return nil, err
	}
	return map[string]string{"run_id": req.RunID, "status": "cancellation requested"}, nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, cause error) {
	fields := map[string]interface{}{
		"status":  code,
		"message": message,
	}
	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if cause != nil {
		fields["error"] = cause.Error()
		rpcErr["data"] = cause.Error()
	}
	s.logger.Error("Request error", fields)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	})
}

// handlePaint handles POST /api/v1/paint for starting a new painting job
func (s *Server) handlePaint(w http.ResponseWriter, r *http.Request) {
	var req PaintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": fmt.Sprintf("Invalid request body: %v", err)})
		return
	}

	result, err := s.startRun(req)
	if err != nil {
		writeJSON(w, statusFor(err), map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Missing run ID"})
		return
	}

	resp, err := s.runStatus(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCancel handles DELETE /api/v1/paint/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Missing run ID"})
		return
	}

	if err := s.cancelRun(id); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancellation requested"})
}

// handlePreview renders the current best Individual of a live run as PNG.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.runsMu.RLock()
	state, ok := s.runs[id]
	s.runsMu.RUnlock()
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	best, ok := state.Engine.Best()
	if !ok {
		http.Error(w, "no individual scored yet", http.StatusNotFound)
		return
	}

	img, err := s.renderer.Render(best.Individual, state.Fields.Dims, state.Fields.Dims)
	if err != nil {
		s.logger.ForRun(id).Error("Preview render failed", map[string]interface{}{"error": err.Error()})
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	defer render.Release(s.renderer, img)

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		s.logger.ForRun(id).Warn("Preview encode failed", map[string]interface{}{"error": err.Error()})
	}
}

// statusFor maps a start failure to an HTTP status.
func statusFor(err error) int {
	switch perrors.KindOf(err) {
	case perrors.KindInputMismatch, perrors.KindDegenerateSampling, perrors.KindInvalidConfig:
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadRequest
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
