package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"log"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/igolaizola/photobooth/pkg/filestore"
	"github.com/igolaizola/photobooth/pkg/image"
	"github.com/igolaizola/photobooth/pkg/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultPageSize = 5
	maxPageSize     = 20
)

var errBusy = errors.New("web: server busy")

type imageStore interface {
	CreateImage(ctx context.Context, v *storage.Image) error
	GetImage(ctx context.Context, id string) (*storage.Image, error)
	DeleteImage(ctx context.Context, id string) error
	ListImages(ctx context.Context, page, size int, orderBy string, filter ...storage.Filter) ([]*storage.Image, error)
	CountImages(ctx context.Context, filter ...storage.Filter) (int64, error)
}

type fileStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, name string) error
}

type server struct {
	pipeline    *image.Pipeline
	limits      image.Limits
	store       imageStore
	files       fileStore
	workers     chan struct{}
	timeout     time.Duration
	limiter     *rateLimiter
	metrics     *metrics
	credentials map[string]string
	static      iofs.FS
	debug       func(string, ...any)
	now         func() time.Time
}

type serverConfig struct {
	Limits      image.Limits
	Concurrency int
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
	Credentials map[string]string
	Debug       bool
}

func newServer(p *image.Pipeline, store imageStore, files fileStore, static iofs.FS, cfg serverConfig) *server {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Limits.MaxInputSize <= 0 {
		cfg.Limits.MaxInputSize = image.DefaultMaxInputSize
	}
	debug := func(format string, args ...any) {
		if !cfg.Debug {
			return
		}
		format += "\n"
		log.Printf(format, args...)
	}
	return &server{
		pipeline:    p,
		limits:      cfg.Limits,
		store:       store,
		files:       files,
		workers:     make(chan struct{}, cfg.Concurrency),
		timeout:     cfg.Timeout,
		limiter:     newRateLimiter(cfg.RateLimit, cfg.RateBurst),
		metrics:     newMetrics(),
		credentials: cfg.Credentials,
		static:      static,
		debug:       debug,
		now:         time.Now,
	}
}

func (s *server) router(debug bool) http.Handler {
	mux := chi.NewRouter()

	// Add middleware
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Recoverer)
	mux.Use(middleware.Timeout(60 * time.Second))
	if debug {
		mux.Use(middleware.Logger)
	}

	// Add BasicAuth middleware
	if len(s.credentials) > 0 {
		mux.Use(middleware.BasicAuth("photobooth", s.credentials))
	}

	mux.Method(http.MethodGet, "/metrics", s.metrics.handler())

	mux.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))
		r.Get("/overlays", s.listOverlays)
		r.Post("/images", s.createImage)
		r.Get("/images", s.listImages)
		r.Get("/images/{id}", s.getImage)
		r.Delete("/images/{id}", s.deleteImage)
	})
	mux.Get("/images/{filename}", s.serveImage)

	// Handler to serve the static files
	if s.static != nil {
		mux.Get("/*", http.FileServer(http.FS(s.static)).ServeHTTP)
	}
	return mux
}

// user returns the identity images are recorded under.
func (s *server) user(r *http.Request) string {
	if len(s.credentials) == 0 {
		return storage.AnonymousUser
	}
	// BasicAuth middleware has already checked the password.
	u, _, _ := r.BasicAuth()
	return u
}

// rateKey identifies the caller for rate limiting.
func (s *server) rateKey(r *http.Request) string {
	if len(s.credentials) > 0 {
		return "user:" + s.user(r)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

type overlaysResponse struct {
	Success  bool     `json:"success"`
	Overlays []string `json:"overlays"`
}

func (s *server) listOverlays(w http.ResponseWriter, r *http.Request) {
	overlays := slices.Collect(s.pipeline.ListOverlays())
	if overlays == nil {
		overlays = []string{}
	}
	writeJSON(w, http.StatusOK, &overlaysResponse{Success: true, Overlays: overlays})
}

type imageResponse struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	URL              string    `json:"url"`
	User             string    `json:"user"`
	Overlay          string    `json:"overlay"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	Size             int       `json:"size"`
	CreatedAt        time.Time `json:"created_at"`
}

func toImageResponse(v *storage.Image) *imageResponse {
	return &imageResponse{
		ID:               v.ID,
		Filename:         v.Filename,
		URL:              imageURL(v.Filename),
		User:             v.UserID,
		Overlay:          v.Overlay,
		OriginalFilename: v.OriginalFilename,
		Width:            v.Width,
		Height:           v.Height,
		Size:             v.Size,
		CreatedAt:        v.CreatedAt,
	}
}

func imageURL(filename string) string {
	return "/images/" + filename
}

type createResponse struct {
	Success bool `json:"success"`
	*imageResponse
}

func (s *server) createImage(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(s.rateKey(r), s.now()) {
		s.metrics.rateLimited.Inc()
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		return
	}

	// Base64 inflates the payload by a third, plus room for the other fields.
	maxBody := int64(s.limits.MaxInputSize)*4/3 + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	up, err := readUpload(r, s.limits.MaxInputSize, s.now())
	if err != nil {
		s.fail(w, "read upload", err)
		return
	}
	if up.ContentType != "" {
		src, err := image.ValidateLimits(up.Data, s.limits)
		if err != nil {
			s.fail(w, "validate upload", err)
			return
		}
		if err := image.ValidateContentType(up.ContentType, src); err != nil {
			s.fail(w, "validate upload", err)
			return
		}
	}

	res, err := s.compose(r.Context(), up.Data, up.Overlay)
	if err != nil {
		s.fail(w, "compose", err)
		return
	}

	// Persist the bytes first so a record never points at missing content.
	ctx := r.Context()
	err = s.files.Put(ctx, res.Filename, res.Data)
	s.metrics.store("put", err)
	if err != nil {
		s.fail(w, "store image", err)
		return
	}
	v := &storage.Image{
		ID:               ulid.Make().String(),
		CreatedAt:        s.now().UTC(),
		UserID:           s.user(r),
		Filename:         res.Filename,
		OriginalFilename: up.OriginalFilename,
		Overlay:          up.Overlay,
		Width:            res.Width,
		Height:           res.Height,
		Size:             len(res.Data),
	}
	if err := s.store.CreateImage(ctx, v); err != nil {
		// The filename is discarded along with its content.
		derr := s.files.Delete(context.WithoutCancel(ctx), res.Filename)
		s.metrics.store("delete", derr)
		if derr != nil {
			log.Printf("web: couldn't clean up %s: %v\n", res.Filename, derr)
		}
		s.fail(w, "record image", err)
		return
	}
	s.debug("web: created %s for %s with %s", v.Filename, v.UserID, v.Overlay)
	writeJSON(w, http.StatusCreated, &createResponse{Success: true, imageResponse: toImageResponse(v)})
}

// compose runs the pipeline on the worker pool. It waits for a free worker
// at most until the call timeout.
func (s *server) compose(ctx context.Context, raw []byte, overlay string) (*image.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	select {
	case s.workers <- struct{}{}:
	case <-ctx.Done():
		s.metrics.composed.WithLabelValues("busy").Inc()
		return nil, fmt.Errorf("%w: %v", errBusy, ctx.Err())
	}

	type result struct {
		res *image.Result
		err error
	}
	resultC := make(chan result, 1)
	go func() {
		defer func() { <-s.workers }()
		s.metrics.inFlight.Inc()
		defer s.metrics.inFlight.Dec()
		start := time.Now()
		res, err := s.pipeline.Compose(raw, overlay, s.limits)
		s.metrics.duration.Observe(time.Since(start).Seconds())
		s.metrics.composed.WithLabelValues(image.Kind(err)).Inc()
		resultC <- result{res: res, err: err}
	}()
	select {
	case r := <-resultC:
		return r.res, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", errBusy, ctx.Err())
	}
}

type listResponse struct {
	Success bool             `json:"success"`
	Images  []*imageResponse `json:"images"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	Size    int              `json:"size"`
}

func (s *server) listImages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil {
		size = defaultPageSize
	}
	size = max(1, min(maxPageSize, size))

	var filters []storage.Filter
	if r.URL.Query().Get("mine") == "true" {
		filters = append(filters, storage.Where("user_id = ?", s.user(r)))
	}
	images, err := s.store.ListImages(ctx, page, size, "created_at desc, id desc", filters...)
	if err != nil {
		s.fail(w, "list images", err)
		return
	}
	total, err := s.store.CountImages(ctx, filters...)
	if err != nil {
		s.fail(w, "count images", err)
		return
	}
	resp := &listResponse{
		Success: true,
		Images:  []*imageResponse{},
		Total:   total,
		Page:    page,
		Size:    size,
	}
	for _, v := range images {
		resp.Images = append(resp.Images, toImageResponse(v))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) getImage(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.GetImage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "get image", err)
		return
	}
	writeJSON(w, http.StatusOK, &createResponse{Success: true, imageResponse: toImageResponse(v)})
}

type deleteResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func (s *server) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	v, err := s.store.GetImage(ctx, id)
	if err != nil {
		s.fail(w, "get image", err)
		return
	}
	if v.UserID != s.user(r) {
		writeError(w, http.StatusForbidden, "Permission denied")
		return
	}
	err = s.files.Delete(ctx, v.Filename)
	s.metrics.store("delete", err)
	if err != nil {
		s.fail(w, "delete content", err)
		return
	}
	if err := s.store.DeleteImage(ctx, id); err != nil {
		s.fail(w, "delete image", err)
		return
	}
	s.debug("web: deleted %s", v.Filename)
	writeJSON(w, http.StatusOK, &deleteResponse{Success: true, ID: id})
}

func (s *server) serveImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	if !image.ValidFilename(filename) {
		http.NotFound(w, r)
		return
	}
	b, err := s.files.Get(r.Context(), filename)
	s.metrics.store("get", err)
	if errors.Is(err, filestore.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.Printf("web: couldn't get %s: %v\n", filename, err)
		http.Error(w, "server error occurred", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	// Names are unique and content never changes.
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	_, _ = w.Write(b)
}

// fail writes the response for err. Internal details are logged, never
// returned to the client.
func (s *server) fail(w http.ResponseWriter, op string, err error) {
	status, msg := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.Printf("web: couldn't %s: %v\n", op, err)
	} else {
		s.debug("web: couldn't %s: %v", op, err)
	}
	writeError(w, status, msg)
}

func errorResponse(err error) (int, string) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, image.ErrTooLarge), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, image.Message(image.ErrTooLarge)
	case errors.Is(err, image.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType, image.Message(err)
	case errors.Is(err, image.ErrCorruptImage), errors.Is(err, image.ErrDecodeFailed):
		return http.StatusUnprocessableEntity, image.Message(err)
	case errors.Is(err, image.ErrOverlayNotFound):
		return http.StatusNotFound, image.Message(err)
	case errors.Is(err, errInvalidPayload):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "image not found"
	case errors.Is(err, errBusy):
		return http.StatusServiceUnavailable, "server busy, try again later"
	default:
		return http.StatusInternalServerError, image.Message(err)
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorBody{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Println("web: couldn't encode response:", err)
	}
}
