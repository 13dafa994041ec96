package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-chi/chi/v5"

	"l2resolver/ccip"
)

const requestLimit = 1 << 20 // 1 MiB

// Handler serves the offchain lookup HTTP surface:
//
//	GET  /{sender}/{data}.json
//	POST /  {"sender": "0x..", "data": "0x.."}
type Handler struct {
	service    *Service
	timeout    time.Duration
	retryAfter time.Duration
}

// NewHandler exposes service over HTTP. retryAfter is advertised when a
// lookup is not yet provable.
func NewHandler(service *Service, timeout, retryAfter time.Duration) *Handler {
	return &Handler{service: service, timeout: timeout, retryAfter: retryAfter}
}

// Mount registers the lookup routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/{sender}/{data}", h.get)
	r.Post("/", h.post)
}

func (h *Handler) context(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := h.timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	sender, err := parseSender(chi.URLParam(r, "sender"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	data, err := hexutil.Decode(strings.TrimSuffix(chi.URLParam(r, "data"), ".json"))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: data: %v", ErrBadQuery, err))
		return
	}
	h.respond(w, r, sender, data)
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		h.writeError(w, fmt.Errorf("%w: read body: %v", ErrBadQuery, err))
		return
	}
	var req ccip.Request
	if err := json.Unmarshal(body, &req); err != nil {
		h.writeError(w, fmt.Errorf("%w: body: %v", ErrBadQuery, err))
		return
	}
	sender, err := parseSender(req.Sender)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.respond(w, r, sender, req.Data)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, sender common.Address, data []byte) {
	ctx, cancel := h.context(r.Context())
	defer cancel()

	out, err := h.service.Respond(ctx, sender, data)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ccip.Response{Data: out})
}

func parseSender(raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: sender %q is not an address", ErrBadQuery, raw)
	}
	return common.HexToAddress(raw), nil
}

// StatusCode maps a lookup error to its HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrBadQuery):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotYetProvable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status == http.StatusServiceUnavailable && h.retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(h.retryAfter.Round(time.Second)/time.Second))))
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.service.logger.Error("lookup failed", "error", err)
		message = http.StatusText(status)
	}
	writeJSON(w, status, ccip.ErrorResponse{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
