package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/tendant/assetstore/pkg/assetstore"
)

// DefaultMaxMemory bounds the multipart form kept in memory while parsing.
const DefaultMaxMemory = 32 << 20

// AssetHandler serves the asset store over HTTP.
type AssetHandler struct {
	service assetstore.Service
	logger  *slog.Logger
}

// NewAssetHandler creates a handler backed by service.
func NewAssetHandler(service assetstore.Service, logger *slog.Logger) *AssetHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AssetHandler{service: service, logger: logger}
}

// Routes returns the asset routes. Trailing slashes are ignored, so
// /assets/{digest}/ reaches the same lookup as /assets/{digest}.
func (h *AssetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)

	r.Get("/health", h.Health)
	r.Get("/statistics", h.GetStatistics)
	r.Post("/cleanup", h.Cleanup)

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.UploadAsset)
		r.Post("/batch", h.ImportBatch)
		r.Get("/{digest}", h.GetAsset)
		r.Head("/{digest}", h.GetAsset)
		r.Delete("/{digest}", h.DeleteAsset)
	})

	return r
}

// UploadResponse is returned by POST /assets. ThumbnailError is set when the
// primary was stored but its thumbnail could not be derived.
type UploadResponse struct {
	*assetstore.UploadResult
	ThumbnailError string `json:"thumbnail_error,omitempty"`
}

// BatchItemResponse is one entry of the POST /assets/batch response.
type BatchItemResponse struct {
	assetstore.ItemResult
	Error string `json:"error,omitempty"`
}

// BatchResponse is returned by POST /assets/batch.
type BatchResponse struct {
	Items     []BatchItemResponse `json:"items"`
	Succeeded int                 `json:"succeeded"`
	Failed    int                 `json:"failed"`
}

// CleanupRequest is the body of POST /cleanup.
type CleanupRequest struct {
	DryRun bool `json:"dry_run"`
	// OlderThan is a Go duration string such as "24h".
	OlderThan string `json:"older_than,omitempty"`
}

// CleanupResponse is returned by POST /cleanup. Error is set when some
// candidates could not be removed.
type CleanupResponse struct {
	*assetstore.CollectReport
	Error string `json:"error,omitempty"`
}

// GetAsset streams an asset by digest. Digests never change content, so
// responses are immutable and revalidate by ETag. Token validation and the
// project check happen in the service, through assetstore.Resolve for local
// repositories.
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "digest")

	rc, meta, err := h.service.OpenAsset(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	header := w.Header()
	header.Set("ETag", strconv.Quote(meta.Digest.String()))
	header.Set("Cache-Control", "public, max-age=31536000, immutable")
	header.Set("Content-Type", meta.MimeType)
	header.Set("X-Asset-Kind", string(meta.Kind))

	if rs, ok := rc.(io.ReadSeeker); ok {
		// handles If-None-Match, Range and HEAD
		http.ServeContent(w, r, "", meta.CreatedAt, rs)
		return
	}

	if etagMatch(r.Header.Get("If-None-Match"), meta.Digest.String()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	header.Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Error("Failed to stream asset", "digest", meta.Digest, "error", err)
	}
}

func etagMatch(ifNoneMatch, digest string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, tag := range strings.Split(ifNoneMatch, ",") {
		tag = strings.TrimSpace(tag)
		tag = strings.TrimPrefix(tag, "W/")
		if tag == "*" || strings.Trim(tag, `"`) == digest {
			return true
		}
	}
	return false
}

// UploadAsset stores the multipart field "file".
func (h *AssetHandler) UploadAsset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}

	file, fh, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, r, "missing form field: file")
		return
	}
	data, err := readPart(file)
	if err != nil {
		h.logger.Error("Failed to read upload", "error", err)
		writeBadRequest(w, r, "failed to read uploaded file")
		return
	}

	size, err := intValue(r.FormValue("thumbnail_size"))
	if err != nil {
		writeBadRequest(w, r, "thumbnail_size must be an integer")
		return
	}

	req := assetstore.UploadRequest{
		Data:              data,
		Filename:          fh.Filename,
		MimeType:          declaredType(r.FormValue("mime_type"), fh),
		GenerateThumbnail: boolValue(r.FormValue("thumbnail")),
		ThumbnailSize:     size,
	}

	result, err := h.service.UploadAsset(r.Context(), req)
	if err != nil && result == nil {
		writeError(w, r, err)
		return
	}

	resp := UploadResponse{UploadResult: result}
	if err != nil {
		resp.ThumbnailError = err.Error()
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, resp)
}

// ImportBatch stores every multipart field named "files". Item failures are
// reported per item and do not fail the request.
func (h *AssetHandler) ImportBatch(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(DefaultMaxMemory); err != nil {
		writeBadRequest(w, r, fmt.Sprintf("invalid multipart form: %v", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeBadRequest(w, r, "missing form field: files")
		return
	}

	items := make([]assetstore.BatchItem, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeBadRequest(w, r, fmt.Sprintf("failed to open %s", fh.Filename))
			return
		}
		data, err := readPart(f)
		if err != nil {
			writeBadRequest(w, r, fmt.Sprintf("failed to read %s", fh.Filename))
			return
		}
		items = append(items, assetstore.BatchItem{
			Data:     data,
			Filename: fh.Filename,
			MimeType: declaredType("", fh),
		})
	}

	size, err := intValue(r.FormValue("thumbnail_size"))
	if err != nil {
		writeBadRequest(w, r, "thumbnail_size must be an integer")
		return
	}

	results, err := h.service.ImportBatch(r.Context(), items, assetstore.ImportOptions{
		GenerateThumbnails: boolValue(r.FormValue("thumbnails")),
		ThumbnailSize:      size,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := BatchResponse{Items: make([]BatchItemResponse, len(results))}
	for i, res := range results {
		resp.Items[i] = BatchItemResponse{ItemResult: res}
		if res.Err != nil {
			resp.Items[i].Error = res.Err.Error()
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	render.JSON(w, r, resp)
}

// DeleteAsset removes an asset. Deleting an absent asset is not an error.
func (h *AssetHandler) DeleteAsset(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.DeleteAsset(r.Context(), chi.URLParam(r, "digest"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, map[string]bool{"deleted": deleted})
}

// Cleanup runs garbage collection against the configured reference source.
func (h *AssetHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeBadRequest(w, r, "invalid JSON body")
			return
		}
	}

	opts := assetstore.CleanupOptions{DryRun: req.DryRun}
	if req.OlderThan != "" {
		d, err := time.ParseDuration(req.OlderThan)
		if err != nil || d < 0 {
			writeBadRequest(w, r, "older_than must be a non-negative duration")
			return
		}
		opts.OlderThan = d
	}

	report, err := h.service.Cleanup(r.Context(), opts)
	if err != nil && report == nil {
		writeError(w, r, err)
		return
	}

	resp := CleanupResponse{CollectReport: report}
	if err != nil {
		h.logger.Warn("Cleanup finished with failures", "failed", len(report.Failed), "error", err)
		resp.Error = err.Error()
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, resp)
}

// GetStatistics reports asset counts and sizes.
func (h *AssetHandler) GetStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, stats)
}

// Health reports whether the bound project is open.
func (h *AssetHandler) Health(w http.ResponseWriter, r *http.Request) {
	p := h.service.Project()
	status := "ok"
	if !p.Active() {
		status = "inactive"
		render.Status(r, http.StatusServiceUnavailable)
	}
	resp := map[string]string{"status": status}
	if p != nil {
		resp["project"] = p.Name
		resp["project_id"] = p.ID.String()
	}
	render.JSON(w, r, resp)
}

func readPart(f multipart.File) ([]byte, error) {
	defer f.Close()
	return io.ReadAll(f)
}

// declaredType prefers an explicit form value, then the part's own
// Content-Type unless it is the generic octet-stream default.
func declaredType(explicit string, fh *multipart.FileHeader) string {
	if explicit != "" {
		return explicit
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == assetstore.DefaultMimeType {
		return ""
	}
	return ct
}

func boolValue(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func intValue(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
