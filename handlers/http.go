package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/metrics"
	"github.com/vidbridge/vidbridge/services"
	"github.com/vidbridge/vidbridge/store"
)

var playTemplate = template.Must(template.New("play").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Name}}</title></head>
<body style="margin:0;background:#000">
<video controls autoplay style="width:100%;height:100vh" src="{{.Src}}"></video>
</body>
</html>
`))

// HTTPHandler is the token-gated file server plus the direct-upload and
// play-page surface.
type HTTPHandler struct {
	local   *store.LocalDiskStorageImpl
	remote  store.ObjectStorage // nil unless a remote sink is configured
	tokens  store.TokenStore
	hub     *Hub
	baseURL string
	cors    string

	logger logging.Logger
}

func NewHTTPHandler(
	local *store.LocalDiskStorageImpl,
	remote store.ObjectStorage,
	tokens store.TokenStore,
	hub *Hub,
	baseURL, corsOrigin string,
	l logging.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		local:   local,
		remote:  remote,
		tokens:  tokens,
		hub:     hub,
		baseURL: baseURL,
		cors:    corsOrigin,
		logger:  l,
	}
}

func (h *HTTPHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.withCORS)

	// mux does not run Use middleware when a route matches by path but
	// not by method, so preflight for method-restricted routes lands here.
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		h.setCORSHeaders(w)
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	r.HandleFunc("/ws", h.hub.HandleWS)
	r.HandleFunc("/upload-direct", h.handleUploadDirect).Methods(http.MethodPost)
	r.HandleFunc("/uploads/{name}", h.handleGetUpload).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/play", h.handlePlay).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}

func (h *HTTPHandler) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.cors)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-File-Name, Range")
}

func (h *HTTPHandler) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleGetUpload streams a stored file under token gating, honoring a
// single bytes=start-end range for seekable playback.
func (h *HTTPHandler) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	size, err := h.local.Stat(name)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "token required", http.StatusUnauthorized)
		return
	}
	if err := h.tokens.Validate(r.Context(), token, name); err != nil {
		if errors.Is(err, apperrors.ErrTokenInvalid) {
			http.Error(w, "token invalid or expired", http.StatusForbidden)
			return
		}
		h.logger.Error("token validation failed", "file", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	f, err := h.local.Open(name)
	if err != nil {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}
	defer f.Close()

	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Accept-Ranges", "bytes")

	start, end, ok, satisfiable := parseRange(r.Header.Get("Range"), size)
	if !ok {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return
		}
		n, _ := io.Copy(w, f)
		metrics.BytesServedTotal.Add(float64(n))
		return
	}
	if !satisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	length := end - start + 1
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return
	}
	n, _ := io.Copy(w, io.NewSectionReader(f, start, length))
	metrics.BytesServedTotal.Add(float64(n))
}

// parseRange understands a single "bytes=start-end" range with an
// optional end. ok is false when no usable range header is present (serve
// the full file); satisfiable is false when start or end falls outside
// the file.
func parseRange(header string, size int64) (start, end int64, ok, satisfiable bool) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false, false
	}

	from, to, found := strings.Cut(spec, "-")
	if !found || from == "" {
		return 0, 0, false, false
	}

	start, err := strconv.ParseInt(from, 10, 64)
	if err != nil || start < 0 {
		return 0, 0, false, false
	}

	end = size - 1
	if to != "" {
		end, err = strconv.ParseInt(to, 10, 64)
		if err != nil || end < start {
			return 0, 0, false, false
		}
	}

	if start >= size || end >= size {
		return 0, 0, true, false
	}
	return start, end, true, true
}

type uploadDirectResponse struct {
	UploadUrl string `json:"uploadUrl"`
	PlayUrl   string `json:"playUrl"`
	Token     string `json:"token"`
}

// handleUploadDirect accepts a whole file body in one request, mints a
// token immediately and returns a playable URL. When a remote sink is
// configured the object is pushed there and the local copy discarded.
func (h *HTTPHandler) handleUploadDirect(w http.ResponseWriter, r *http.Request) {
	name := r.Header.Get("X-File-Name")
	if name == "" {
		http.Error(w, "x-file-name header required", http.StatusBadRequest)
		return
	}

	if _, err := h.local.Put(r.Context(), name, r.Body, 0); err != nil {
		if errors.Is(err, apperrors.ErrUnsafeName) {
			http.Error(w, "unsafe file name", http.StatusBadRequest)
			return
		}
		h.logger.Error("direct upload failed", "name", name, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	token, err := h.tokens.Mint(r.Context(), name)
	if err != nil {
		h.logger.Error("failed to mint token for direct upload", "name", name, "error", err)
		http.Error(w, "upload failed", http.StatusInternalServerError)
		return
	}

	uploadURL := services.PlayableURL(h.baseURL, name, token)
	playURL := fmt.Sprintf("%s/play?file=%s&token=%s", h.baseURL, url.QueryEscape(name), url.QueryEscape(token))

	if h.remote != nil {
		if remoteURL, err := h.putRemote(r, name); err != nil {
			// Keep serving locally; the sink is best-effort.
			h.logger.Warn("remote put failed, keeping local copy", "name", name, "error", err)
		} else {
			uploadURL = remoteURL
			playURL = remoteURL
		}
	}

	h.logger.Info("direct upload stored", "name", name, "remote", h.remote != nil)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(uploadDirectResponse{
		UploadUrl: uploadURL,
		PlayUrl:   playURL,
		Token:     token,
	})
}

func (h *HTTPHandler) putRemote(r *http.Request, name string) (string, error) {
	size, err := h.local.Stat(name)
	if err != nil {
		return "", err
	}
	f, err := h.local.Open(name)
	if err != nil {
		return "", err
	}
	defer f.Close()

	remoteURL, err := h.remote.Put(r.Context(), "videos/"+name, f, size)
	if err != nil {
		return "", err
	}

	if err := h.local.Remove(r.Context(), name); err != nil {
		h.logger.Warn("failed to discard local copy after remote put", "name", name, "error", err)
	}
	return remoteURL, nil
}

// handlePlay renders a minimal HTML wrapper around the streaming URL.
func (h *HTTPHandler) handlePlay(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("file")
	token := r.URL.Query().Get("token")
	if name == "" {
		http.Error(w, "file parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	playTemplate.Execute(w, struct {
		Name string
		Src  string
	}{
		Name: name,
		Src:  services.PlayableURL("", name, token),
	})
}
