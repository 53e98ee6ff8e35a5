package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/agentrun/internal/engine"
	"github.com/codefionn/agentrun/internal/logger"
	"github.com/codefionn/agentrun/internal/sink"
)

const tickTimeout = 60 * time.Second

// server exposes the trigger API: submitting execution requests, ticking
// the controller, and reading back persisted results.
type server struct {
	controller *engine.Controller
	results    *sink.SQLiteSink
	hub        *sink.Hub
	log        *logger.Logger
}

type submitRequest struct {
	AgentID  uint32 `json:"agent_id"`
	InputURI string `json:"input_uri"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func newServer(controller *engine.Controller, results *sink.SQLiteSink, hub *sink.Hub, log *logger.Logger) *server {
	return &server{
		controller: controller,
		results:    results,
		hub:        hub,
		log:        log.WithPrefix("http"),
	}
}

func (s *server) routes() http.Handler {
	router := httprouter.New()
	router.POST("/v1/submit", s.handleSubmit)
	router.POST("/v1/tick", s.handleTick)
	router.GET("/v1/results", s.handleResults)
	router.GET("/v1/results/ws", s.handleResultsWS)
	router.GET("/healthz", s.handleHealth)
	return router
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return
	}

	if err := s.controller.Submit(req.AgentID, []byte(req.InputURI)); err != nil {
		if errors.Is(err, engine.ErrInvalidRequest) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	s.log.Info("accepted request for agent %d", req.AgentID)
	writeJSON(w, http.StatusAccepted, req)
}

func (s *server) handleTick(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Ticks run in the background so a slow execution does not hold the
	// caller; overlapping ticks are ignored by the controller anyway.
	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	go func() {
		defer cancel()
		s.controller.Tick(ctx)
	}()
	w.WriteHeader(http.StatusAccepted)
}

func (s *server) handleResults(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.results == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "result persistence is not enabled"})
		return
	}

	results, err := s.results.Recent(r.Context(), 50)
	if err != nil {
		s.log.Error("failed to read results: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to read results"})
		return
	}
	if results == nil {
		results = []sink.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *server) handleResultsWS(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.hub.ServeHTTP(w, r)
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Warn("failed to write response: %v", err)
	}
}
