// Package web serves a read-only HTTP API over the calendar registry.
package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"calendarapp/internal/calendar"
	"calendarapp/internal/config"
	"calendarapp/internal/ics"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/registry"
	"calendarapp/internal/timeutil"
)

// Server exposes calendars over HTTP. Every registry access happens under
// mu, the same lock the command controller holds while it mutates.
type Server struct {
	cfg config.WebConfig
	reg *registry.Registry
	mu  sync.Locker
	mux *http.ServeMux

	// cache keys include the calendar revision, so entries of a mutated
	// calendar are never served again and simply age out.
	cache    *expirable.LRU[string, cachedResponse]
	limiters *expirable.LRU[string, *rate.Limiter]

	now func() time.Time
}

type cachedResponse struct {
	contentType string
	body        []byte
}

const (
	cacheSize        = 256
	maxClients       = 1000
	clientLimiterTTL = 5 * time.Minute
)

func NewServer(reg *registry.Registry, mu sync.Locker, cfg config.WebConfig) *Server {
	s := &Server{
		cfg: cfg,
		reg: reg,
		mu:  mu,
		mux: http.NewServeMux(),
		now: time.Now,
	}
	if cfg.CacheTTLSeconds > 0 {
		s.cache = expirable.NewLRU[string, cachedResponse](cacheSize, nil, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}
	if cfg.RateLimitPerSec > 0 {
		s.limiters = expirable.NewLRU[string, *rate.Limiter](maxClients, nil, clientLimiterTTL)
	}
	s.registerRoutes()
	return s
}

// Handler returns the mux wrapped with rate limiting and, when configured,
// basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	if s.limiters != nil {
		h = s.rateLimitMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	a := s.cfg.BasicAuth
	return a != nil && a.Username != "" && a.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="calendar", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware applies one token bucket per client IP.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientIP(r)
		limiter, ok := s.limiters.Get(key)
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSec), s.cfg.RateBurst)
			s.limiters.Add(key, limiter)
		}
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves h on listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, listen string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/calendars", s.handleCalendars)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/calendars/{name}/feed.ics", s.handleFeed)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type calendarDTO struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Current  bool   `json:"current"`
	Revision uint64 `json:"revision"`
}

func (s *Server) handleCalendars(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	out := make([]calendarDTO, 0)
	for _, name := range s.reg.Names() {
		c, err := s.reg.Get(name)
		if err != nil {
			continue
		}
		out = append(out, calendarDTO{
			Name:     name,
			Timezone: c.Zone(),
			Current:  name == s.reg.CurrentName(),
			Revision: c.Revision(),
		})
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

type eventsResponse struct {
	Calendar string          `json:"calendar"`
	Timezone string          `json:"timezone"`
	Events   []model.Details `json:"events"`
}

// handleEvents lists occurrences of one calendar.
//
// GET /api/events?calendar=NAME&date=yyyy-MM-dd
// GET /api/events?calendar=NAME&from=yyyy-MM-ddTHH:mm&to=yyyy-MM-ddTHH:mm
//   - calendar defaults to the current calendar
//   - with neither date nor from/to, every occurrence is returned
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveCached(w, r, q.Get("calendar"), func(name string, c *calendar.Calendar) (cachedResponse, error) {
		var rows []model.Details
		var err error
		switch {
		case q.Get("date") != "":
			var day time.Time
			if day, err = timeutil.ParseDate(q.Get("date"), c.Location()); err == nil {
				rows, err = c.GetEventsOnDate(day)
			}
		case q.Get("from") != "" || q.Get("to") != "":
			var from, to time.Time
			if from, err = timeutil.ParseDateOrDateTime(q.Get("from"), c.Location()); err != nil {
				return cachedResponse{}, err
			}
			if to, err = timeutil.ParseDateOrDateTime(q.Get("to"), c.Location()); err != nil {
				return cachedResponse{}, err
			}
			rows, err = c.GetEventsRange(from, to)
		default:
			rows = c.GetAllEvents()
		}
		if err != nil {
			return cachedResponse{}, err
		}
		if rows == nil {
			rows = []model.Details{}
		}
		return jsonResponse(eventsResponse{Calendar: name, Timezone: c.Zone(), Events: rows})
	})
}

type statusResponse struct {
	Calendar string `json:"calendar"`
	At       string `json:"at"`
	Status   string `json:"status"`
}

// handleStatus reports Busy or Available.
//
// GET /api/status?calendar=NAME&at=yyyy-MM-ddTHH:mm
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	s.serveCached(w, r, q.Get("calendar"), func(name string, c *calendar.Calendar) (cachedResponse, error) {
		at, err := timeutil.ParseDateTime(q.Get("at"), c.Location())
		if err != nil {
			return cachedResponse{}, err
		}
		status, err := c.GetStatusOnDateTime(at)
		if err != nil {
			return cachedResponse{}, err
		}
		return jsonResponse(statusResponse{Calendar: name, At: timeutil.FormatDateTime(at), Status: status})
	})
}

// handleFeed exports one calendar as an ICS subscription feed.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "calendar name is empty")
		return
	}
	s.serveCached(w, r, name, func(name string, c *calendar.Calendar) (cachedResponse, error) {
		var buf bytes.Buffer
		if err := ics.Export(&buf, c, name, s.now()); err != nil {
			return cachedResponse{}, err
		}
		return cachedResponse{contentType: "text/calendar; charset=utf-8", body: buf.Bytes()}, nil
	})
}

// serveCached resolves the calendar under the registry lock and renders it,
// reusing a cached body for the same calendar revision and request.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, name string, render func(string, *calendar.Calendar) (cachedResponse, error)) {
	s.mu.Lock()
	if name == "" {
		name = s.reg.CurrentName()
	}
	c, err := s.reg.Get(name)
	if err != nil {
		s.mu.Unlock()
		writeModelError(w, err)
		return
	}

	key := name + "\x00" + strconv.FormatUint(c.Revision(), 10) + "\x00" + r.URL.Path + "?" + r.URL.RawQuery
	if s.cache != nil {
		if resp, ok := s.cache.Get(key); ok {
			s.mu.Unlock()
			write(w, resp)
			return
		}
	}

	resp, err := render(name, c)
	s.mu.Unlock()
	if err != nil {
		writeModelError(w, err)
		return
	}
	if s.cache != nil {
		s.cache.Add(key, resp)
	}
	write(w, resp)
}

func jsonResponse(v any) (cachedResponse, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return cachedResponse{}, err
	}
	return cachedResponse{contentType: "application/json; charset=utf-8", body: append(body, '\n')}, nil
}

func write(w http.ResponseWriter, resp cachedResponse) {
	w.Header().Set("Content-Type", resp.contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(resp.body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeModelError maps the calendar error kinds to HTTP statuses.
func writeModelError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
