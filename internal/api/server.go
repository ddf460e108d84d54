package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"nft_market/internal/engine"
	"nft_market/internal/event"
	"nft_market/internal/infra"
	"nft_market/internal/market"
	"nft_market/internal/service"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const maxBodyBytes = 64 << 10

// Submitter executes one signed instruction.
type Submitter interface {
	Submit(ctx context.Context, ix event.Instruction, signers ...solana.PublicKey) (*engine.Receipt, error)
}

// Server is the HTTP front of the marketplace.
type Server struct {
	seq     Submitter
	svc     *service.MarketService
	metrics *infra.Metrics
	hub     *Hub
	limiter *SignerLimiter
	replay  *ReplayGuard
	timeout time.Duration
}

// NewServer creates a new Server instance
func NewServer(seq Submitter, svc *service.MarketService, metrics *infra.Metrics, hub *Hub, limiter *SignerLimiter, timeout time.Duration) *Server {
	return &Server{
		seq:     seq,
		svc:     svc,
		metrics: metrics,
		hub:     hub,
		limiter: limiter,
		replay:  NewReplayGuard(MaxRequestTTL),
		timeout: timeout,
	}
}

// Router returns the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/instructions", s.handleSubmit).Methods(http.MethodPost)
	v1.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/state/{address}", s.handleState).Methods(http.MethodGet)
	v1.HandleFunc("/listings", s.handleListings).Methods(http.MethodGet)
	v1.HandleFunc("/listings/{seller}/{item_id}", s.handleListing).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{address}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	if s.hub != nil {
		v1.HandleFunc("/stream", s.hub.ServeWS).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	return r
}

type ctxKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "request too large")
		return
	}

	var req InstructionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ix, signer, err := req.Verify()
	switch {
	case errors.Is(err, ErrBadSignature):
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.replay.CheckExpiry(&req); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrExpired) {
			status = http.StatusUnauthorized
		}
		writeError(w, status, err.Error())
		return
	}

	if s.limiter != nil && !s.limiter.Allow(signer) {
		if s.metrics != nil {
			s.metrics.RecordRateLimited()
		}
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	// A rate-limited request is not remembered and may be retried.
	if err := s.replay.Admit(&req); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	receipt, err := s.seq.Submit(ctx, ix, signer)
	if err != nil {
		slog.Warn("Submit failed",
			slog.String("request_id", requestID(r)),
			slog.String("type", req.Type),
			slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, "sequencer unavailable: "+err.Error())
		return
	}

	status := http.StatusOK
	if !receipt.OK {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, receipt)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	var (
		view *service.StateView
		err  error
	)
	if raw, ok := mux.Vars(r)["address"]; ok {
		addr, perr := solana.PublicKeyFromBase58(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid address")
			return
		}
		view, err = s.svc.GetStateAt(r.Context(), addr)
	} else {
		view, err = s.svc.GetState(r.Context())
	}
	s.writeView(w, r, view, err, "state not initialized")
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	var seller *solana.PublicKey
	if raw := r.URL.Query().Get("seller"); raw != "" {
		key, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid seller")
			return
		}
		seller = &key
	}

	views, err := s.svc.Listings(r.Context(), seller)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	seller, err := solana.PublicKeyFromBase58(vars["seller"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seller")
		return
	}

	if err := market.ValidateItemID(vars["item_id"]); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := s.svc.GetListing(r.Context(), seller, vars["item_id"])
	s.writeView(w, r, view, err, "listing not found")
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := solana.PublicKeyFromBase58(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	view, err := s.svc.GetAccount(r.Context(), addr)
	s.writeView(w, r, view, err, "account not found")
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusOK, infra.MetricsSnapshot{Timestamp: time.Now()})
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, view any, err error, missing string) {
	switch {
	case err != nil:
		s.internalError(w, r, err)
	case isNil(view):
		writeError(w, http.StatusNotFound, missing)
	default:
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("Request failed",
		slog.String("request_id", requestID(r)),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func isNil(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *service.StateView:
		return x == nil
	case *service.ListingView:
		return x == nil
	case *service.AccountView:
		return x == nil
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
