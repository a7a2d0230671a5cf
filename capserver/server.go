// Package capserver exposes capstore.Store over HTTP with JSON bodies
package capserver

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/kjk/capnation/capstore"
	"github.com/kjk/capnation/log"
	"github.com/klauspost/compress/gzhttp"
	"github.com/tidwall/pretty"
)

const maxBodySize = 1 << 20

type Server struct {
	Store *capstore.Store
}

func New(store *capstore.Store) *Server {
	return &Server{
		Store: store,
	}
}

// Handler returns a handler for all /cap/ routes. Responses are gzip
// compressed if the client accepts it and every request is logged.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /cap/save", s.handleSave)
	mux.HandleFunc("GET /cap/find-all", s.handleFindAll)
	mux.HandleFunc("GET /cap/find", s.handleFind)
	mux.HandleFunc("GET /cap/find-by-brand", s.handleFindByBrand)
	mux.HandleFunc("GET /cap/find-range", s.handleFindRange)
	mux.HandleFunc("GET /cap/count", s.handleCount)
	mux.HandleFunc("GET /cap/brands", s.handleBrands)
	return withLogging(gzhttp.GzipHandler(mux))
}

// CapturingResponseWriter remembers status code and size of the response
type CapturingResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Size       int64
}

func (w *CapturingResponseWriter) WriteHeader(statusCode int) {
	w.StatusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *CapturingResponseWriter) Write(d []byte) (int, error) {
	w.Size += int64(len(d))
	return w.ResponseWriter.Write(d)
}

func withLogging(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timeStart := time.Now()
		cw := &CapturingResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
		h.ServeHTTP(cw, r)
		dur := time.Since(timeStart)
		log.IfErrf(log.HTTPRequest(r, cw.StatusCode, cw.Size, dur))
		log.Verbosef("%s %s %d %s\n", r.Method, r.URL.String(), cw.StatusCode, dur)
	})
}

// StatusForError maps capstore errors to http status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, capstore.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, capstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, capstore.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func serveJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		log.Errorf("capserver: json.Marshal() failed with '%s'", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if r.URL.Query().Get("pretty") != "" {
		d = pretty.Pretty(d)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(d)
}

func serveError(w http.ResponseWriter, r *http.Request, err error) {
	code := StatusForError(err)
	if code == http.StatusInternalServerError {
		log.Errorf("capserver: %s %s failed with '%s'", r.Method, r.URL.Path, err)
	}
	serveJSON(w, r, code, errorResponse{Error: err.Error()})
}

func badRequest(format string, args ...any) error {
	return invalidCap(format, args...)
}

func queryInt64(r *http.Request, name string) (int64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, badRequest("missing '%s' argument", name)
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, badRequest("'%s' argument '%s' is not a valid number", name, s)
	}
	return n, nil
}

// POST /cap/save
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var c capstore.Cap
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		serveError(w, r, badRequest("invalid cap json: %s", err))
		return
	}
	if err := ValidateCap(&c); err != nil {
		serveError(w, r, err)
		return
	}
	saved, err := s.Store.Save(c)
	if err != nil {
		serveError(w, r, err)
		return
	}
	log.EventFromRequest(r, "cap_saved_http", "id", saved.ID, "brand", saved.Brand)
	serveJSON(w, r, http.StatusOK, saved)
}

// GET /cap/find-all
func (s *Server) handleFindAll(w http.ResponseWriter, r *http.Request) {
	caps, err := s.Store.FindAll()
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, caps)
}

// GET /cap/find?id=<id>
func (s *Server) handleFind(w http.ResponseWriter, r *http.Request) {
	id, err := queryInt64(r, "id")
	if err != nil {
		serveError(w, r, err)
		return
	}
	c, err := s.Store.FindByID(id)
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, c)
}

// GET /cap/find-by-brand?brand=<brand>
func (s *Server) handleFindByBrand(w http.ResponseWriter, r *http.Request) {
	brand := r.URL.Query().Get("brand")
	if brand == "" {
		serveError(w, r, badRequest("missing 'brand' argument"))
		return
	}
	caps, err := s.Store.FindByBrand(brand)
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, caps)
}

// GET /cap/find-range?from=<id>&to=<id>
func (s *Server) handleFindRange(w http.ResponseWriter, r *http.Request) {
	from, err := queryInt64(r, "from")
	if err != nil {
		serveError(w, r, err)
		return
	}
	to, err := queryInt64(r, "to")
	if err != nil {
		serveError(w, r, err)
		return
	}
	caps, err := s.Store.FindByIDRange(from, to)
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, caps)
}

// GET /cap/count
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.Store.Count()
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, map[string]int{"count": n})
}

// GET /cap/brands
func (s *Server) handleBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := s.Store.Brands()
	if err != nil {
		serveError(w, r, err)
		return
	}
	serveJSON(w, r, http.StatusOK, brands)
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	chErr := make(chan error, 1)
	go func() {
		log.Logf("capserver: listening on %s\n", addr)
		err := httpSrv.ListenAndServe()
		// mute error caused by Shutdown()
		if err == http.ErrServerClosed {
			err = nil
		}
		chErr <- err
	}()

	select {
	case err := <-chErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	log.Logf("capserver: stopped\n")
	return err
}
