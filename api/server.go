// Package api exposes the voting service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"

	"blind-voting/blindsig"
	"blind-voting/blockchain/gate"
	"blind-voting/ledger"
	"blind-voting/log"
	"blind-voting/models"
	"blind-voting/registry"
	"blind-voting/service"
)

const requestTimeout = 30 * time.Second

type Server struct {
	votingService *service.VotingService
	queue         *service.QueueProcessor
	adminToken    string
	Mux           *chi.Mux
}

type Options struct {
	// Queue routes registrations and votes through a QueueProcessor when set.
	Queue *service.QueueProcessor
	// AdminToken protects administrative endpoints. Empty disables them.
	AdminToken string
}

type RegisterVoterRequest struct {
	VoterID string `json:"voter_id"`
}

type CastVoteRequest struct {
	VoterID   string `json:"voter_id"`
	Candidate uint32 `json:"candidate"`
}

type PublicKeyResponse struct {
	Key         blindsig.PublicKey `json:"key"`
	Bits        int                `json:"bits"`
	Fingerprint string             `json:"fingerprint"`
}

type VerifyResponse struct {
	ID    string `json:"id"`
	Valid bool   `json:"valid"`
}

type StatusResponse struct {
	Session    service.SessionInfo      `json:"session"`
	Statistics *service.VoterStatistics `json:"statistics"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewServer(vs *service.VotingService, opts Options) *Server {
	s := &Server{
		votingService: vs,
		queue:         opts.Queue,
		adminToken:    opts.AdminToken,
		Mux:           chi.NewRouter(),
	}

	s.Mux.Use(middleware.RealIP)
	s.Mux.Use(middleware.Recoverer)
	s.Mux.Use(middleware.Heartbeat("/ping"))
	s.Mux.Use(middleware.Timeout(requestTimeout))
	s.Mux.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	s.Mux.Route("/api", func(r chi.Router) {
		r.Get("/public-key", s.handleGetPublicKey)
		r.Get("/candidates", s.handleGetCandidates)
		r.Get("/status", s.handleGetStatus)
		r.Post("/register", s.handleRegisterVoter)
		r.Post("/vote", s.handleCastVote)
		r.Get("/results", s.handleGetResults)
		r.Get("/records", s.handleGetRecords)
		r.Post("/verify", s.handleVerifyRecord)
		r.Get("/blockchain/{chain}", s.handleGetChain)
		r.With(s.requireAdmin).Post("/admin/end-session", s.handleEndSession)
	})
	s.Mux.Method(http.MethodGet, "/metrics", vs.Metrics().Handler())
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	var rangeErr *blindsig.RangeError
	switch {
	case errors.As(err, &rangeErr),
		errors.Is(err, service.ErrInvalidVoterID):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrDoubleVote),
		errors.Is(err, service.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionClosed),
		errors.Is(err, registry.ErrUnknownVoter),
		errors.Is(err, registry.ErrInactiveVoter),
		errors.Is(err, gate.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrLedgerUnavailable),
		errors.Is(err, service.ErrQueueFull),
		errors.Is(err, service.ErrQueueStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, want := []byte(r.Header.Get("Authorization")), []byte("Bearer "+s.adminToken)
		if s.adminToken == "" || subtle.ConstantTimeCompare(got, want) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleGetPublicKey(w http.ResponseWriter, r *http.Request) {
	pub := s.votingService.PublicKey()
	writeJSON(w, http.StatusOK, PublicKeyResponse{
		Key:         pub,
		Bits:        pub.N.BitLen(),
		Fingerprint: pub.Fingerprint().Hex(),
	})
}

func (s *Server) handleGetCandidates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.votingService.Candidates())
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Session:    s.votingService.Session(),
		Statistics: s.votingService.GetVoterStatistics(),
	})
}

func (s *Server) handleRegisterVoter(w http.ResponseWriter, r *http.Request) {
	var req RegisterVoterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var registration *models.VoterRegistration
	if s.queue != nil {
		result, err := service.Await(r.Context(), s.queue.QueueRegistration(r.Context(), req.VoterID))
		if err != nil {
			writeError(w, err)
			return
		}
		registration = result.Registration
	} else {
		var err error
		if registration, err = s.votingService.RegisterVoter(r.Context(), req.VoterID); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, registration)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	var record models.VoteRecord
	if s.queue != nil {
		result, err := service.Await(r.Context(), s.queue.QueueVote(r.Context(), req.VoterID, req.Candidate))
		if err != nil {
			writeError(w, err)
			return
		}
		record = *result.Record
	} else {
		var err error
		if record, err = s.votingService.CastVote(r.Context(), req.VoterID, req.Candidate); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.votingService.GetResults())
}

func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.votingService.PublishedRecords()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleVerifyRecord(w http.ResponseWriter, r *http.Request) {
	var record models.VoteRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid vote record"})
		return
	}
	writeJSON(w, http.StatusOK, VerifyResponse{ID: record.ID, Valid: s.votingService.VerifyRecord(record)})
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	chain, err := s.votingService.GetChain(chi.URLParam(r, "chain"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	s.votingService.EndVotingSession()
	writeJSON(w, http.StatusOK, s.votingService.Session())
}
