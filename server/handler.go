package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/papertrade/auth"
	"github.com/rustyeddy/papertrade/journal"
	"github.com/rustyeddy/papertrade/market"
	"github.com/rustyeddy/papertrade/sim"
)

const maxBodyBytes = 1 << 20

// Handler implements the API endpoints.
type Handler struct {
	trader   Trader
	accounts Accounts
	db       Pinger
	logger   *slog.Logger
}

func NewHandler(trader Trader, accounts Accounts, db Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		trader:   trader,
		accounts: accounts,
		db:       db,
		logger:   logger,
	}
}

// Routes registers every endpoint on a new mux and wraps it with the
// response headers and request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /api/v1/register", h.Register)
	mux.HandleFunc("GET /api/v1/quote/{symbol}", h.requireUser(h.Quote))
	mux.HandleFunc("POST /api/v1/buy", h.requireUser(h.Buy))
	mux.HandleFunc("POST /api/v1/sell", h.requireUser(h.Sell))
	mux.HandleFunc("GET /api/v1/portfolio", h.requireUser(h.Portfolio))
	mux.HandleFunc("GET /api/v1/history", h.requireUser(h.History))
	mux.HandleFunc("GET /api/v1/positions/symbols", h.requireUser(h.Symbols))
	return logRequests(h.logger, noCache(mux))
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Warn("health check failed", "error", err)
			h.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

type userResponse struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Cash     decimal.Decimal `json:"cash"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}
	u, err := h.accounts.Register(r.Context(), req.Username, req.Password, req.Confirmation)
	switch {
	case err == nil:
		h.respondJSON(w, http.StatusCreated, userResponse{ID: u.ID, Username: u.Username, Cash: u.Cash})
	case errors.Is(err, auth.ErrMissingField), errors.Is(err, auth.ErrPasswordMismatch):
		h.respondError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, auth.ErrUsernameTaken):
		h.respondError(w, http.StatusConflict, "username_taken", err.Error())
	default:
		h.logger.Error("register failed", "error", err)
		h.respondError(w, http.StatusServiceUnavailable, sim.KindStorageUnavailable.String(), "storage unavailable, try again")
	}
}

type quoteResponse struct {
	market.Quote
	Display string `json:"display"`
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	q, err := h.trader.Quote(r.Context(), r.PathValue("symbol"))
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, quoteResponse{Quote: q, Display: market.FormatUSD(q.Price)})
}

// tradeRequest accepts shares as a JSON number or a numeric string.
type tradeRequest struct {
	Symbol string      `json:"symbol"`
	Shares json.Number `json:"shares"`
}

type tradeResponse struct {
	Message string `json:"message"`
	sim.Receipt
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, journal.Buy)
}

func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, journal.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request, side journal.Side) {
	u, _ := userFrom(r.Context())

	var req tradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	shares, err := sim.ParseShares(req.Shares.String())
	if err != nil {
		h.engineError(w, err)
		return
	}

	var receipt sim.Receipt
	switch side {
	case journal.Buy:
		receipt, err = h.trader.ExecuteBuy(r.Context(), u.ID, req.Symbol, shares)
	default:
		receipt, err = h.trader.ExecuteSell(r.Context(), u.ID, req.Symbol, shares)
	}
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, tradeResponse{Message: side.Label() + "!", Receipt: receipt})
}

func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	view, err := h.trader.Portfolio(r.Context(), u.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, view)
}

type historyResponse struct {
	Transactions []journal.Entry `json:"transactions"`
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	entries, err := h.trader.History(r.Context(), u.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	h.respondJSON(w, http.StatusOK, historyResponse{Transactions: entries})
}

func (h *Handler) Symbols(w http.ResponseWriter, r *http.Request) {
	u, _ := userFrom(r.Context())
	symbols, err := h.trader.Symbols(r.Context(), u.ID)
	if err != nil {
		h.engineError(w, err)
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	h.respondJSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, sim.KindInvalidInput.String(),
			fmt.Sprintf("malformed request body: %v", err))
		return false
	}
	return true
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(k sim.Kind) int {
	switch k {
	case sim.KindInvalidInput:
		return http.StatusBadRequest
	case sim.KindUnknownSymbol:
		return http.StatusNotFound
	case sim.KindInsufficientFunds, sim.KindNoSuchPosition, sim.KindInsufficientShares:
		return http.StatusUnprocessableEntity
	case sim.KindOracleUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusServiceUnavailable
	}
}

func (h *Handler) engineError(w http.ResponseWriter, err error) {
	kind := sim.KindOf(err)
	msg := err.Error()
	if kind == sim.KindStorageUnavailable {
		h.logger.Error("storage failure", "error", err)
		msg = "storage unavailable, try again"
	}
	h.respondError(w, statusFor(kind), kind.String(), msg)
}

func (h *Handler) authError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.unauthorized(w)
		return
	}
	h.logger.Error("authentication failed", "error", err)
	h.respondError(w, http.StatusServiceUnavailable, sim.KindStorageUnavailable.String(), "storage unavailable, try again")
}

func (h *Handler) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="papertrade"`)
	h.respondError(w, http.StatusUnauthorized, "unauthorized", auth.ErrInvalidCredentials.Error())
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (h *Handler) respondError(w http.ResponseWriter, status int, kind, message string) {
	h.respondJSON(w, status, errorResponse{Error: message, Kind: kind})
}
