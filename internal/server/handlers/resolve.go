package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/cartolens/cartolens/internal/core/resolver"
	apperrors "github.com/cartolens/cartolens/internal/errors"
	"github.com/cartolens/cartolens/internal/metrics"
)

// DefaultSpriteExtension is used when a sprite request names no extension.
const DefaultSpriteExtension = ".json"

// ResolveHandler serves GET /v1/resolve/{kind}. The resolver can be
// replaced while requests are in flight.
type ResolveHandler struct {
	resolver atomic.Pointer[resolver.Resolver]
}

// NewResolveHandler creates a handler backed by res.
func NewResolveHandler(res *resolver.Resolver) *ResolveHandler {
	h := &ResolveHandler{}
	h.resolver.Store(res)
	return h
}

// SetResolver swaps the resolver used by subsequent requests and returns the
// previous one.
func (h *ResolveHandler) SetResolver(res *resolver.Resolver) *resolver.Resolver {
	return h.resolver.Swap(res)
}

// Resolver returns the resolver currently serving requests.
func (h *ResolveHandler) Resolver() *resolver.Resolver {
	return h.resolver.Load()
}

func (h *ResolveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	kind, err := resolver.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, "unknown resource kind"))
		return
	}

	req, err := requestFromQuery(kind, r)
	if err != nil {
		metrics.RecordResolutionError(string(kind), "invalid_input")
		respondWithError(w, r, apperrors.WrapInvalidInput(ctx, err, err.Error()))
		return
	}

	res := h.Resolver()
	if res == nil {
		respondWithError(w, r, apperrors.NewInternalError("resolver not configured"))
		return
	}

	result, err := res.Resolve(req)
	if err != nil {
		metrics.RecordResolution(string(kind), false)
		metrics.RecordResolutionError(string(kind), errorClass(err))
		respondWithError(w, r, apperrors.FromResolveError(ctx, err))
		return
	}

	metrics.RecordResolution(string(kind), true)
	writeJSON(w, http.StatusOK, result)
}

func requestFromQuery(kind resolver.Kind, r *http.Request) (resolver.Request, error) {
	query := r.URL.Query()

	req := resolver.Request{
		Kind:        kind,
		Locator:     strings.TrimSpace(query.Get("url")),
		AccessToken: strings.TrimSpace(query.Get("access_token")),
		Format:      query.Get("format"),
		Extension:   query.Get("extension"),
		Source:      strings.TrimSpace(query.Get("source")),
	}

	if req.Locator == "" {
		return req, errors.New("url query parameter is required")
	}

	if kind == resolver.KindSprite && req.Extension == "" {
		req.Extension = DefaultSpriteExtension
	}

	if raw := strings.TrimSpace(query.Get("tile_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return req, errors.New("tile_size must be a positive integer")
		}
		req.TileSize = size
	}

	return req, nil
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, resolver.ErrMissingToken):
		return "missing_token"
	case errors.Is(err, resolver.ErrSecretToken):
		return "secret_token"
	case errors.Is(err, resolver.ErrMalformedURL):
		return "malformed_url"
	default:
		return "internal"
	}
}
