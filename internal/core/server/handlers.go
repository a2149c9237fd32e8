package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/vtile-cache/internal/grid"
	"github.com/mohammed-shakir/vtile-cache/internal/service"
	"github.com/mohammed-shakir/vtile-cache/internal/tiles"
)

const (
	contentTypeTile = "application/x-protobuf"
	contentTypeJSON = "application/json"
	tileExt         = ".pbf"
	styleSuffix     = ".style.json"
	tilejsonSuffix  = ".json"
)

type handlers struct {
	svc     *service.Service
	logger  *slog.Logger
	baseURL string
	maxAge  time.Duration
}

func (h *handlers) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "encode json", "err", err, "path", r.URL.Path)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	_, _ = w.Write(b)
}

// maps service errors to status codes
func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownTileset):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, grid.ErrInvalidTile):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(r.Context(), "request failed", "err", err, "path", r.URL.Path)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// requestBaseURL prefers the configured base URL, then forwarded headers.
func (h *handlers) requestBaseURL(r *http.Request) string {
	if h.baseURL != "" {
		return strings.TrimRight(h.baseURL, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if p := r.Header.Get("X-Forwarded-Proto"); p == "http" || p == "https" {
		scheme = p
	}
	host := r.Host
	if fh := r.Header.Get("X-Forwarded-Host"); fh != "" {
		host = fh
	}
	return scheme + "://" + host
}

func (h *handlers) capabilities(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, h.svc.Capabilities())
}

// style editors ask for font stacks; no glyphs are served
func (h *handlers) fontstacks(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, []string{})
}

// serves /{tileset}.json and /{tileset}.style.json
func (h *handlers) tilesetDocument(w http.ResponseWriter, r *http.Request) {
	doc := chi.URLParam(r, "doc")
	base := h.requestBaseURL(r)

	if name, ok := strings.CutSuffix(doc, styleSuffix); ok {
		st, err := h.svc.TilesetStyle(base, name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeJSON(w, r, st)
		return
	}
	if name, ok := strings.CutSuffix(doc, tilejsonSuffix); ok {
		tj, err := h.svc.TilesetMetadata(base, name)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.writeJSON(w, r, tj)
		return
	}
	http.NotFound(w, r)
}

func (h *handlers) mbtilesMetadata(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.MBTilesMetadata(chi.URLParam(r, "tileset"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, r, m)
}

func parseCoord(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", grid.ErrInvalidTile, name, s)
	}
	return uint32(v), nil
}

func (h *handlers) tile(w http.ResponseWriter, r *http.Request) {
	yfile := chi.URLParam(r, "tile")
	ys, ok := strings.CutSuffix(yfile, tileExt)
	if !ok {
		http.NotFound(w, r)
		return
	}
	var coords [3]uint32
	for i, p := range [3][2]string{{"z", chi.URLParam(r, "z")}, {"x", chi.URLParam(r, "x")}, {"y", ys}} {
		v, err := parseCoord(p[0], p[1])
		if err != nil {
			h.fail(w, r, err)
			return
		}
		coords[i] = v
	}

	gz := acceptsGzip(r.Header.Get("Accept-Encoding"))
	t, err := h.svc.ServeTile(r.Context(), chi.URLParam(r, "tileset"), coords[0], coords[1], coords[2], gz)
	if err != nil && !errors.Is(err, tiles.ErrCacheWrite) {
		h.fail(w, r, err)
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", contentTypeTile)
	hdr.Set("Vary", "Accept-Encoding")
	hdr.Set("ETag", t.ETag)
	if h.maxAge > 0 {
		hdr.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(h.maxAge/time.Second)))
	}
	if gz {
		hdr.Set("Content-Encoding", "gzip")
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == t.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	hdr.Set("Content-Length", strconv.Itoa(len(t.Data)))
	_, _ = w.Write(t.Data)
}

// acceptsGzip reports whether the header allows gzip with a non-zero q.
// An explicit gzip entry wins over the * wildcard.
func acceptsGzip(header string) bool {
	wildcard := false
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		coding = strings.ToLower(strings.TrimSpace(coding))
		if coding != "gzip" && coding != "*" {
			continue
		}
		q := 1.0
		for _, p := range strings.Split(params, ";") {
			k, v, found := strings.Cut(strings.TrimSpace(p), "=")
			if found && strings.EqualFold(strings.TrimSpace(k), "q") {
				if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
					q = f
				}
			}
		}
		if coding == "gzip" {
			return q > 0
		}
		wildcard = q > 0
	}
	return wildcard
}
