package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/heapview/pkg/errors"
	"github.com/matzehuels/heapview/pkg/layout/grid"
	"github.com/matzehuels/heapview/pkg/observability"
	"github.com/matzehuels/heapview/pkg/pipeline"
	"github.com/matzehuels/heapview/pkg/refgraph"
	"github.com/matzehuels/heapview/pkg/render/svg"
	"github.com/matzehuels/heapview/pkg/session"
	"github.com/matzehuels/heapview/pkg/theme"
	"github.com/matzehuels/heapview/pkg/timeline"
	"github.com/matzehuels/heapview/pkg/viewer"
)

const (
	cleanupInterval = time.Minute
	shutdownTimeout = 5 * time.Second
	maxBodyBytes    = 1 << 20
)

func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		themePath string
		mode      string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve <recording>",
		Short: "Serve interactive viewer sessions over HTTP",
		Long: `Serve a recording over HTTP. Each client creates a session (POST /sessions)
holding its own viewer panel, then steps, drags boxes, zooms and labels arrows
through the session's endpoints. GET /sessions/{id}/svg returns the diagram.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			th, err := loadTheme(themePath)
			if err != nil {
				return err
			}
			m := th.Layout.Mode
			if mode != "" {
				if m, err = grid.ParseMode(mode); err != nil {
					return err
				}
			}
			tl, err := timeline.Load(args[0])
			if err != nil {
				return err
			}

			store := session.NewMemoryStore()
			defer store.Close()
			srv := newServer(tl, th, m, store, ttl, c.Logger)

			printKeyValue("Recording", args[0])
			printKeyValue("Steps", fmt.Sprint(tl.Len()))
			printKeyValue("Address", addr)
			return srv.listen(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&themePath, "theme", "", "theme file (TOML)")
	cmd.Flags().StringVar(&mode, "mode", "", "object layout: stacked or grid (default from theme)")
	cmd.Flags().DurationVar(&ttl, "ttl", session.DefaultTTL, "idle session lifetime")
	return cmd
}

// =============================================================================
// Server
// =============================================================================

type server struct {
	tl     *timeline.Timeline
	theme  *theme.Theme
	mode   grid.Mode
	store  session.Store
	ttl    time.Duration
	logger *log.Logger
}

func newServer(tl *timeline.Timeline, th *theme.Theme, mode grid.Mode, store session.Store, ttl time.Duration, logger *log.Logger) *server {
	return &server{tl: tl, theme: th, mode: mode, store: store, ttl: ttl, logger: logger}
}

func (s *server) listen(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.cleanupLoop(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("serving", "addr", addr, "steps", s.tl.Len())
	if err := httpSrv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *server) cleanupLoop(ctx context.Context) {
	t := time.NewTicker(cleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.store.Cleanup(ctx); err != nil {
				s.logger.Warn("session cleanup failed", "err", err)
			}
		}
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/sessions", s.handleCreate)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.handleGet)
		r.Delete("/", s.handleDelete)
		r.Get("/svg", s.handleSVG)
		r.Post("/step", s.handleStep)
		r.Post("/mode", s.handleMode)
		r.Post("/scale", s.handleScale)
		r.Post("/drag", s.handleDrag)
		r.Post("/click", s.handleClick)
		r.Post("/label", s.handleLabel)
	})
	return r
}

// requestLogger attaches a per-request logger and reports every request to
// the server hooks.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		l := s.logger.With("request", middleware.GetReqID(r.Context()))
		next.ServeHTTP(ww, r.WithContext(withLogger(r.Context(), l)))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		observability.Server().OnRequest(r.Context(), r.Method, route, status, elapsed)
		l.Debug("request", "method", r.Method, "route", route, "status", status, "duration", elapsed)
	})
}

// =============================================================================
// Responses
// =============================================================================

// sessionView is the JSON body returned by every session endpoint.
type sessionView struct {
	ID      string         `json:"id"`
	Step    int            `json:"step"`
	Steps   int            `json:"steps"`
	Source  string         `json:"source"`
	Surface viewer.Surface `json:"surface"`
	Edit    *refgraph.Edge `json:"edit,omitempty"` // edge picked by a double click
}

func viewOf(sess *session.Session, st *session.State) sessionView {
	return sessionView{
		ID:      sess.ID,
		Step:    st.Step,
		Steps:   st.Timeline.Len(),
		Source:  st.Timeline.Source(st.Step),
		Surface: st.Panel.Surface(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	if status >= http.StatusInternalServerError {
		loggerFromContext(r.Context()).Error("request failed", "err", err)
	}
	writeJSON(w, status, map[string]string{
		"error": errors.UserMessage(err),
		"code":  string(errors.GetCode(err)),
	})
}

// httpStatus maps error codes to HTTP status codes.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound, errors.ErrCodeFileNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeInvalidFormat, errors.ErrCodeInvalidLayout,
		errors.ErrCodeInvalidMode, errors.ErrCodeInvalidPath, errors.ErrCodeInvalidLabel,
		errors.ErrCodeUnsupported:
		return http.StatusBadRequest
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// decodeBody reads a JSON request body into v. An empty body leaves v as is.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "request body")
	}
	return nil
}

// =============================================================================
// Handlers
// =============================================================================

func (s *server) handleCreate(w http.ResponseWriter, r *http.Request) {
	panel := pipeline.NewPanel(s.theme, s.mode, s.logger)
	sess, err := session.New(s.tl, panel, session.Options{TTL: s.ttl, Logger: s.logger})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.Set(r.Context(), sess); err != nil {
		sess.Close()
		writeError(w, r, err)
		return
	}
	loggerFromContext(r.Context()).Info("session created", "session", sess.ID)
	s.respond(w, r, http.StatusCreated, sess, "view", func(*session.State) error { return nil })
}

func (s *server) handleGet(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, "view", func(*session.State) error { return nil })
}

func (s *server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(r.Context(), id)
	if err == nil && sess == nil {
		err = errors.New(errors.ErrCodeNotFound, "session %s not found", id)
	}
	if err == nil {
		err = s.store.Delete(r.Context(), id)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleSVG(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var out []byte
	err = sess.Do(r.Context(), "svg", func(st *session.State) error {
		out = svg.Render(st.Panel.Surface(), s.theme,
			svg.WithTitle(st.Timeline.Source(st.Step)), svg.WithInteraction())
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = w.Write(out)
}

func (s *server) handleStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Step *int `json:"step"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Step == nil {
		writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "missing field: step"))
		return
	}
	s.withSession(w, r, "step", func(st *session.State) error { return st.Goto(*req.Step) })
}

// handleMode sets {"mode": "grid"} or toggles when no mode is given.
func (s *server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withSession(w, r, "mode", func(st *session.State) error {
		if req.Mode == "" {
			_, err := st.Panel.ToggleMode()
			return err
		}
		m, err := grid.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		return st.Panel.SetMode(m)
	})
}

func (s *server) handleScale(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scale float64 `json:"scale"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withSession(w, r, "scale", func(st *session.State) error { return st.Panel.SetScale(req.Scale) })
}

// handleDrag moves a box by a screen-pixel delta in one gesture.
func (s *server) handleDrag(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID int64   `json:"id"`
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withSession(w, r, "drag", func(st *session.State) error {
		if err := st.Panel.BeginDrag(req.ID); err != nil {
			return err
		}
		if err := st.Panel.DragBy(req.DX, req.DY); err != nil {
			return err
		}
		return st.Panel.EndDrag()
	})
}

// handleClick selects the edge under a screen point. A double click also
// returns the edge as "edit" so the client can prompt for its label.
func (s *server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Clicks int     `json:"clicks"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Clicks == 0 {
		req.Clicks = 1
	}
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var view sessionView
	err = sess.Do(r.Context(), "click", func(st *session.State) error {
		e, ok := st.Panel.Click(req.X, req.Y, req.Clicks)
		view = viewOf(sess, st)
		if ok {
			view.Edit = &e
		}
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLabel labels the edge into {"target"}, or the selected edge when no
// target is given.
func (s *server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target *int64 `json:"target"`
		Label  string `json:"label"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.withSession(w, r, "label", func(st *session.State) error {
		if req.Target == nil {
			return st.Panel.Activate(req.Label)
		}
		return st.Panel.SetLabel(*req.Target, req.Label)
	})
}

// =============================================================================
// Session plumbing
// =============================================================================

func (s *server) session(r *http.Request) (*session.Session, error) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "session %s not found", id)
	}
	return sess, nil
}

// withSession runs fn on the request's session and answers with the
// session's view.
func (s *server) withSession(w http.ResponseWriter, r *http.Request, name string, fn func(*session.State) error) {
	sess, err := s.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.respond(w, r, http.StatusOK, sess, name, fn)
}

func (s *server) respond(w http.ResponseWriter, r *http.Request, status int, sess *session.Session, name string, fn func(*session.State) error) {
	var view sessionView
	err := sess.Do(r.Context(), name, func(st *session.State) error {
		if err := fn(st); err != nil {
			return err
		}
		view = viewOf(sess, st)
		return nil
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, view)
}
