// Package server implements the administrative HTTP+JSON API for the
// Transport Protocol daemon.
package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/dantte-lp/gotpd/internal/tp"
)

// Sentinel errors for the server package.
var (
	// ErrInvalidDestination indicates the dest field is not a valid J1939
	// source address (0-255).
	ErrInvalidDestination = errors.New("dest must be an integer 0-255")

	// ErrInvalidPGN indicates the pgn field is not a valid 18-bit PGN.
	ErrInvalidPGN = errors.New("pgn must be an integer 0-262143")

	// ErrInvalidPayload indicates the payload field is not valid base64.
	ErrInvalidPayload = errors.New("payload must be base64-encoded")

	// ErrMissingPeer indicates a path with no peer address segment.
	ErrMissingPeer = errors.New("peer address path segment is required")
)

// Server implements the admin API as a plain http.Handler wrapping a
// *tp.Engine. Each request delegates straight to the engine's façade
// methods (Send, Cancel, Snapshot); the engine's own mutex serializes
// concurrent requests, so Server holds no additional state.
type Server struct {
	engine *tp.Engine
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a Server and returns it as an http.Handler.
func New(engine *tp.Engine, logger *slog.Logger) *Server {
	s := &Server{
		engine: engine,
		logger: logger.With(slog.String("component", "server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("POST /v1/sessions", s.handleSend)
	mux.HandleFunc("DELETE /v1/sessions/{peer}", s.handleCancel)
	s.mux = mux

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// -------------------------------------------------------------------------
// Wire types
// -------------------------------------------------------------------------

// sendRequest is the JSON body for POST /v1/sessions.
type sendRequest struct {
	Dest    int    `json:"dest"`
	PGN     int    `json:"pgn"`
	Payload string `json:"payload"` // base64-encoded
}

// sendResponse is the JSON body returned from POST /v1/sessions.
type sendResponse struct {
	Peer int    `json:"peer"`
	Role string `json:"role"`
}

// sessionView is the JSON representation of one tp.Session for introspection.
type sessionView struct {
	Role         string `json:"role"`
	Peer         int    `json:"peer"`
	PGN          uint32 `json:"pgn"`
	Size         int    `json:"size"`
	TotalPackets int    `json:"total_packets"`
	NextExpected int    `json:"next_expected"`
	State        string `json:"state"`
}

// errorResponse is the JSON body returned on a non-2xx response.
type errorResponse struct {
	Error string `json:"error"`
}

// -------------------------------------------------------------------------
// Handlers
// -------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	snaps := s.engine.Snapshot()
	views := make([]sessionView, 0, len(snaps))
	for _, sess := range snaps {
		views = append(views, sessionView{
			Role:         sess.Role.String(),
			Peer:         int(sess.Peer),
			PGN:          uint32(sess.PGN),
			Size:         sess.Size,
			TotalPackets: sess.TotalPackets,
			NextExpected: sess.NextExpected,
			State:        sess.State.String(),
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if req.Dest < 0 || req.Dest > 255 {
		writeError(w, http.StatusBadRequest, ErrInvalidDestination)
		return
	}
	if req.PGN < 0 || req.PGN > 0x3FFFF {
		writeError(w, http.StatusBadRequest, ErrInvalidPGN)
		return
	}

	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidPayload, err))
		return
	}

	handle, err := s.engine.Send(tp.Address(req.Dest), tp.PGN(req.PGN), payload)
	if err != nil {
		writeError(w, mapEngineError(err), err)
		return
	}

	s.logger.InfoContext(r.Context(), "send accepted",
		slog.Int("dest", req.Dest), slog.Int("pgn", req.PGN), slog.Int("size", len(payload)))

	writeJSON(w, http.StatusAccepted, sendResponse{
		Peer: int(handle.Peer),
		Role: handle.Role.String(),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	peerStr := strings.TrimPrefix(r.PathValue("peer"), "/")
	if peerStr == "" {
		writeError(w, http.StatusBadRequest, ErrMissingPeer)
		return
	}

	peer, err := strconv.Atoi(peerStr)
	if err != nil || peer < 0 || peer > 255 {
		writeError(w, http.StatusBadRequest, ErrInvalidDestination)
		return
	}

	s.engine.Cancel(tp.Address(peer))
	s.logger.InfoContext(r.Context(), "cancel accepted", slog.Int("peer", peer))

	w.WriteHeader(http.StatusNoContent)
}

// -------------------------------------------------------------------------
// Internal helpers
// -------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// mapEngineError translates tp.Engine errors into HTTP status codes.
func mapEngineError(err error) int {
	switch {
	case errors.Is(err, tp.ErrBusy), errors.Is(err, tp.ErrDuplicateSession):
		return http.StatusConflict
	case errors.Is(err, tp.ErrNoResources):
		return http.StatusServiceUnavailable
	case errors.Is(err, tp.ErrTooLarge), errors.Is(err, tp.ErrTooSmall):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
