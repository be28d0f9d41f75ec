// Package api exposes the escrow engine over HTTP.
//
// The caller's identity is taken from the X-Participant-ID header, which the
// authenticating proxy in front of this service sets. Request bodies never
// carry a signer.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atmx/arena-escrow/internal/escrow"
	"github.com/atmx/arena-escrow/internal/model"
	"github.com/atmx/arena-escrow/internal/payout"
)

// ParticipantHeader carries the authenticated caller identity.
const ParticipantHeader = "X-Participant-ID"

var errBadMatchID = errors.New("match id must be a positive integer")

// Handler serves the escrow HTTP API.
type Handler struct {
	eng *escrow.Engine
	log *zap.Logger
}

func NewHandler(eng *escrow.Engine, log *zap.Logger) *Handler {
	return &Handler{eng: eng, log: log}
}

// Routes mounts every endpoint on r. The caller decides the prefix.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/registry", h.GetRegistry)
	r.Post("/registry", h.InitializeRegistry)

	r.Get("/matches", h.ListMatches)
	r.Post("/matches", h.CreateMatch)
	r.Route("/matches/{matchID}", func(r chi.Router) {
		r.Get("/", h.GetMatch)
		r.Post("/bets", h.PlaceBet)
		r.Post("/deadline", h.CheckDeadline)
		r.Post("/resolve", h.ResolveMatch)
		r.Post("/claim", h.Claim)
		r.Get("/receipts", h.ListReceipts)
		r.Get("/receipts/{participant}", h.GetReceipt)
		r.Get("/resolution", h.GetResolution)
	})

	r.Get("/accounts/{account}", h.GetAccount)
	r.Post("/accounts/{account}/deposit", h.Deposit)
}

// --- Request/Response types ---

// CreateMatchRequest is the JSON body for POST /matches.
type CreateMatchRequest struct {
	MinStakeThreshold uint64 `json:"min_stake_threshold"`
	Duration          uint64 `json:"duration"` // slots
}

// PlaceBetRequest is the JSON body for POST /matches/{matchID}/bets.
// Prediction is 0 for outcome A and 1 for outcome B. It has no default.
type PlaceBetRequest struct {
	Amount     uint64 `json:"amount"`
	Prediction *int64 `json:"prediction"`
}

// ResolveRequest is the JSON body for POST /matches/{matchID}/resolve.
// Moves are 0 rock, 1 paper, 2 scissors.
type ResolveRequest struct {
	MoveA *int64 `json:"move_a"`
	MoveB *int64 `json:"move_b"`
}

// DepositRequest is the JSON body for POST /accounts/{account}/deposit. The
// caller must be the registry authority.
type DepositRequest struct {
	Amount uint64 `json:"amount"`
}

// AccountResponse reports one balance.
type AccountResponse struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

// MatchResponse is a pool with its custody state and current odds.
type MatchResponse struct {
	model.Pool
	CustodyAccount string       `json:"custody_account"`
	CustodyBalance uint64       `json:"custody_balance"`
	PoolAuthority  string       `json:"pool_authority"`
	Odds           payout.Quote `json:"odds"`
	Slot           uint64       `json:"slot"`
}

// --- HTTP Handlers ---

// InitializeRegistry handles POST /api/v1/registry. The caller becomes the
// registry authority.
func (h *Handler) InitializeRegistry(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	reg, err := h.eng.InitializeRegistry(r.Context(), caller)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

// GetRegistry handles GET /api/v1/registry.
func (h *Handler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.eng.Registry(r.Context())
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// CreateMatch handles POST /api/v1/matches. The caller becomes the match
// authority and is the only identity allowed to resolve it.
func (h *Handler) CreateMatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req CreateMatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", escrow.KindValidation, http.StatusBadRequest)
		return
	}

	pool, err := h.eng.CreateMatch(r.Context(), caller, req.MinStakeThreshold, req.Duration)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

// ListMatches handles GET /api/v1/matches, optionally filtered by
// ?status=<status>.
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	var status model.MatchStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if err := status.UnmarshalText([]byte(s)); err != nil {
			writeError(w, err.Error(), escrow.KindValidation, http.StatusBadRequest)
			return
		}
	}

	pools, err := h.eng.Pools(r.Context(), status)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if pools == nil {
		pools = []model.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

// GetMatch handles GET /api/v1/matches/{matchID}.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	pool, err := h.eng.Pool(ctx, id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	custody := escrow.CustodyAccount(id)
	balance, err := h.eng.Balance(ctx, custody)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MatchResponse{
		Pool:           *pool,
		CustodyAccount: custody,
		CustodyBalance: balance,
		PoolAuthority:  escrow.PoolAuthority(id),
		Odds:           payout.QuotePool(pool),
		Slot:           h.eng.Slot(),
	})
}

// PlaceBet handles POST /api/v1/matches/{matchID}/bets.
func (h *Handler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", escrow.KindValidation, http.StatusBadRequest)
		return
	}
	if req.Prediction == nil {
		writeError(w, "prediction is required", escrow.KindValidation, http.StatusBadRequest)
		return
	}

	prediction, err := wireCode(*req.Prediction, escrow.ErrInvalidOutcome)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	receipt, err := h.eng.PlaceBet(r.Context(), caller, id, req.Amount, prediction)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// CheckDeadline handles POST /api/v1/matches/{matchID}/deadline. Anyone may
// call it; the outcome depends only on the slot counter and the stakes.
func (h *Handler) CheckDeadline(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	pool, err := h.eng.CheckDeadline(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// ResolveMatch handles POST /api/v1/matches/{matchID}/resolve.
func (h *Handler) ResolveMatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", escrow.KindValidation, http.StatusBadRequest)
		return
	}
	if req.MoveA == nil || req.MoveB == nil {
		writeError(w, "move_a and move_b are required", escrow.KindValidation, http.StatusBadRequest)
		return
	}

	moveA, err := wireCode(*req.MoveA, escrow.ErrInvalidMove)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	moveB, err := wireCode(*req.MoveB, escrow.ErrInvalidMove)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	res, err := h.eng.ResolveMatch(r.Context(), caller, id, moveA, moveB)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Claim handles POST /api/v1/matches/{matchID}/claim.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := matchID(w, r)
	if !ok {
		return
	}

	receipt, err := h.eng.Claim(r.Context(), caller, id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// ListReceipts handles GET /api/v1/matches/{matchID}/receipts.
func (h *Handler) ListReceipts(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	receipts, err := h.eng.Receipts(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if receipts == nil {
		receipts = []model.Receipt{}
	}
	writeJSON(w, http.StatusOK, receipts)
}

// GetReceipt handles GET /api/v1/matches/{matchID}/receipts/{participant}.
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	receipt, err := h.eng.Receipt(r.Context(), chi.URLParam(r, "participant"), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// GetResolution handles GET /api/v1/matches/{matchID}/resolution.
func (h *Handler) GetResolution(w http.ResponseWriter, r *http.Request) {
	id, ok := matchID(w, r)
	if !ok {
		return
	}
	res, err := h.eng.Resolution(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetAccount handles GET /api/v1/accounts/{account}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	balance, err := h.eng.Balance(r.Context(), account)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account, Balance: balance})
}

// Deposit handles POST /api/v1/accounts/{account}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	account := chi.URLParam(r, "account")
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", escrow.KindValidation, http.StatusBadRequest)
		return
	}

	balance, err := h.eng.Deposit(r.Context(), caller, account, req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Account: account, Balance: balance})
}

// --- Helpers ---

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.Header.Get(ParticipantHeader)
	if id == "" {
		writeError(w, ParticipantHeader+" header is required", escrow.KindAuthorization, http.StatusUnauthorized)
		return "", false
	}
	return id, true
}

// wireCode narrows a request enum code. Codes that cannot be a uint8 are
// reported with the same error the engine uses for out-of-range codes.
func wireCode(v int64, invalid error) (uint8, error) {
	if v < 0 || v > math.MaxUint8 {
		return 0, fmt.Errorf("%w: %d", invalid, v)
	}
	return uint8(v), nil
}

func matchID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil || id == 0 {
		writeError(w, errBadMatchID.Error(), escrow.KindValidation, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

var kindStatus = map[escrow.Kind]int{
	escrow.KindValidation:    http.StatusBadRequest,
	escrow.KindNotFound:      http.StatusNotFound,
	escrow.KindAuthorization: http.StatusForbidden,
	escrow.KindState:         http.StatusConflict,
	escrow.KindArithmetic:    http.StatusInternalServerError,
	escrow.KindConsistency:   http.StatusInternalServerError,
	escrow.KindInternal:      http.StatusInternalServerError,
}

func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	kind := escrow.KindOf(err)
	status := kindStatus[kind]

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		if kind == escrow.KindInternal {
			writeError(w, "internal error", kind, status)
			return
		}
	}
	writeError(w, err.Error(), kind, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, kind escrow.Kind, status int) {
	writeJSON(w, status, map[string]string{"error": message, "kind": string(kind)})
}
