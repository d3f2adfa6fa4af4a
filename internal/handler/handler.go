package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/harliandi/sizefit/internal/codec"
	"github.com/harliandi/sizefit/internal/converter"
	"github.com/harliandi/sizefit/internal/middleware"
	"github.com/harliandi/sizefit/internal/render"
)

const (
	maxMemory = 32 << 20 // 32MB max in-memory for multipart parsing
	// multipart framing on top of the file itself
	formOverhead  = 1 << 20
	submitRetries = 3
)

// Response headers describing the search result.
const (
	HeaderScale           = "X-Sizefit-Scale"
	HeaderQuality         = "X-Sizefit-Quality"
	HeaderProbes          = "X-Sizefit-Probes"
	HeaderWithinTolerance = "X-Sizefit-Within-Tolerance"
	HeaderFormat          = "X-Sizefit-Format"
)

var errBadParam = errors.New("invalid parameter")

// Resizer runs a resize; *converter.WorkerPool implements it.
type Resizer interface {
	SubmitWithRetry(ctx context.Context, data []byte, req converter.Request, maxRetries int) (*converter.Output, error)
}

// Options configures a Handler.
type Options struct {
	MaxUploadMB  int
	TargetSizeKB int
	ToleranceKB  int
	Logger       *zap.Logger
}

// Handler handles HTTP requests for image resizing
type Handler struct {
	resizer     Resizer
	maxUploadMB int
	targetKB    int
	toleranceKB int
	logger      *zap.Logger
}

// New creates a new Handler
func New(resizer Resizer, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		resizer:     resizer,
		maxUploadMB: opts.MaxUploadMB,
		targetKB:    opts.TargetSizeKB,
		toleranceKB: opts.ToleranceKB,
		logger:      logger,
	}
}

func (h *Handler) maxUpload() int64 {
	return int64(h.maxUploadMB) << 20
}

// Resize handles the /resize endpoint
func (h *Handler) Resize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := h.logger.With(zap.String("request_id", middleware.RequestIDFromContext(r.Context())))

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload()+formOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			http.Error(w, "Request too large", http.StatusRequestEntityTooLarge)
		case errors.Is(err, http.ErrNotMultipart):
			http.Error(w, "Content-Type must be multipart/form-data", http.StatusBadRequest)
		default:
			http.Error(w, "Malformed multipart form", http.StatusBadRequest)
		}
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload()+1))
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}
	if int64(len(data)) > h.maxUpload() {
		http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		return
	}

	// Validate content (actual format check, not the file name)
	if kind, mime := codec.Detect(data); kind == codec.KindUnknown {
		http.Error(w, fmt.Sprintf("Unsupported media type %s", mime), http.StatusUnsupportedMediaType)
		return
	}

	req, err := h.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.resizer.SubmitWithRetry(r.Context(), data, req, submitRetries)
	if err != nil {
		h.writeError(w, r, logger, err)
		return
	}

	if out.FellBack {
		logger.Warn("requested format unavailable", zap.String("requested", req.Format), zap.Stringer("served", out.Format))
	}
	h.sendImage(w, out)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, msg := http.StatusInternalServerError, "Resize failed"
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("client went away", zap.Error(err))
		return
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusServiceUnavailable, "Resize timed out"
	case errors.Is(err, converter.ErrPoolBusy):
		w.Header().Set("Retry-After", "1")
		status, msg = http.StatusServiceUnavailable, "Service busy, please try again"
	case errors.Is(err, codec.ErrDecode), errors.Is(err, converter.ErrInvalidImageDimensions):
		status, msg = http.StatusUnsupportedMediaType, "Cannot decode image"
	case errors.Is(err, converter.ErrFileTooLarge), errors.Is(err, converter.ErrImageTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "Image too large"
	case errors.Is(err, codec.ErrUnsupportedFormat), errors.Is(err, render.ErrInvalidLayout), errors.Is(err, converter.ErrInvalidTarget):
		status, msg = http.StatusBadRequest, err.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.Error("resize failed", zap.Error(err), zap.String("path", r.URL.Path))
	} else {
		logger.Info("resize rejected", zap.Error(err), zap.Int("status", status))
	}
	http.Error(w, msg, status)
}

// parseRequest reads the query parameters into a resize request.
func (h *Handler) parseRequest(r *http.Request) (converter.Request, error) {
	q := r.URL.Query()
	req := converter.Request{
		TargetBytes:    h.targetKB * 1024,
		ToleranceBytes: h.toleranceKB * 1024,
		Format:         strings.ToLower(q.Get("format")),
	}

	if v := q.Get("target_kb"); v != "" {
		kb, err := strconv.Atoi(v)
		if err != nil || kb <= 0 {
			return req, fmt.Errorf("%w: target_kb must be a positive integer", errBadParam)
		}
		req.TargetBytes = kb * 1024
	}
	if v := q.Get("tolerance_kb"); v != "" {
		kb, err := strconv.Atoi(v)
		if err != nil || kb < 0 {
			return req, fmt.Errorf("%w: tolerance_kb must be a non-negative integer", errBadParam)
		}
		req.ToleranceBytes = kb * 1024
	}
	if req.Format != "" {
		if _, err := codec.ParseFormat(req.Format); err != nil {
			return req, fmt.Errorf("%w: format must be one of jpeg, png, webp, avif", errBadParam)
		}
	}

	mode, err := render.ParseMode(q.Get("mode"))
	if err != nil {
		return req, fmt.Errorf("%w: mode must be one of fit, crop, letterbox, stretch", errBadParam)
	}
	req.Layout.Mode = mode
	for _, p := range []struct {
		name string
		dst  *int
	}{{"width", &req.Layout.Width}, {"height", &req.Layout.Height}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, fmt.Errorf("%w: %s must be a non-negative integer", errBadParam, p.name)
		}
		*p.dst = n
	}

	if v := q.Get("quality"); v != "" {
		quality, err := parseQuality(v)
		if err != nil {
			return req, err
		}
		req.Quality = quality
	}
	return req, nil
}

// parseQuality accepts a fraction in (0,1] or a percentage in (1,100].
func parseQuality(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || f > 100 {
		return 0, fmt.Errorf("%w: quality must be in (0,1] or (1,100]", errBadParam)
	}
	if f > 1 {
		f /= 100
	}
	return f, nil
}

func (h *Handler) sendImage(w http.ResponseWriter, out *converter.Output) {
	hdr := w.Header()
	hdr.Set("Content-Type", out.Format.MIME())
	hdr.Set("Content-Length", strconv.Itoa(out.Size()))
	hdr.Set(HeaderFormat, out.Format.String())
	hdr.Set(HeaderScale, strconv.FormatFloat(out.Scale, 'f', 4, 64))
	hdr.Set(HeaderQuality, strconv.FormatFloat(out.Quality, 'f', 4, 64))
	hdr.Set(HeaderProbes, strconv.Itoa(out.Probes))
	hdr.Set(HeaderWithinTolerance, strconv.FormatBool(out.WithinTolerance))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(out.Data); err != nil {
		h.logger.Debug("write response", zap.Error(err))
	}
}

// Health handles the /health endpoint for readiness/liveness probes
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	formats := make([]string, 0, len(codec.Formats))
	for _, f := range codec.Formats {
		if codec.Supported(f) {
			formats = append(formats, f.String())
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(struct {
		Status  string   `json:"status"`
		Formats []string `json:"formats"`
	}{"ok", formats})
}
