// Package web renders the portal. Every browser event becomes a fragment
// request; handlers call the diagnosis backend and answer with HTML that the
// page swaps in place.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Skufu/diagportal/internal/portal"
	"github.com/Skufu/diagportal/internal/session"
	"github.com/Skufu/diagportal/internal/upstream"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	sessionKey = "session_id"
	stateKey   = "session_state"
	kindKey    = "upload_kind"
)

var errEmptyMessage = errors.New("empty chat message")

// Backend is the subset of the diagnosis backend the portal uses.
type Backend interface {
	Symptoms(ctx context.Context) ([]string, error)
	Diagnose(ctx context.Context, symptoms []string) (*upstream.Diagnosis, error)
	Precautions(ctx context.Context, disease string) ([]string, error)
	Doctors(ctx context.Context, disease string) ([]upstream.Doctor, error)
	AnalyzeScan(ctx context.Context, f upstream.File, scanType string) (*upstream.ScanResult, error)
	AnalyzeReport(ctx context.Context, f upstream.File) (*upstream.ReportResult, error)
	Chat(ctx context.Context, message string) (*upstream.ChatTurn, error)
	Login(ctx context.Context, email, password string) (*upstream.AuthResult, error)
	Register(ctx context.Context, name, email, password string) (*upstream.AuthResult, error)
}

type Options struct {
	Backend Backend
	Store   session.Store
	Logger  *zap.Logger

	// ChatStale is how long a chat turn may stay in flight before another
	// request is allowed to take it over.
	ChatStale    time.Duration
	SessionTTL   time.Duration
	SecureCookie bool
}

type Handler struct {
	backend    Backend
	store      session.Store
	logger     *zap.Logger
	tmpl       *template.Template
	chatStale  time.Duration
	sessionTTL time.Duration
	secure     bool
}

func New(opts Options) (*Handler, error) {
	if opts.Backend == nil || opts.Store == nil {
		return nil, errors.New("web: backend and store are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &Handler{
		backend:    opts.Backend,
		store:      opts.Store,
		logger:     logger,
		tmpl:       tmpl,
		chatStale:  opts.ChatStale,
		sessionTTL: opts.SessionTTL,
		secure:     opts.SecureCookie,
	}, nil
}

var funcs = template.FuncMap{
	"inc":            func(i int) int { return i + 1 },
	"tier":           portal.SeverityTier,
	"query":          url.QueryEscape,
	"nothingToShow":  func() string { return portal.NothingToShow },
	"noScanFindings": func() string { return portal.NoScanFindings },
	"emptyReport":    func() string { return portal.EmptyReport },
}

// trigger is the browser event an action answers: a fragment request.
type trigger struct {
	method string
	path   string
}

// guard decides whether an effect may run. A non-nil error is turned into
// a response by reject and the effect is skipped.
type guard func(c *gin.Context) error

type action struct {
	trigger trigger
	guard   guard
	effect  gin.HandlerFunc
}

func (h *Handler) actions() []action {
	var all []action
	all = append(all, h.pageActions()...)
	all = append(all, h.symptomActions()...)
	all = append(all, h.diagnosisActions()...)
	all = append(all, h.adviceActions()...)
	all = append(all, h.uploadActions()...)
	all = append(all, h.chatActions()...)
	all = append(all, h.authActions()...)
	return all
}

// Register mounts every component's actions behind the session middleware.
func (h *Handler) Register(r gin.IRouter) {
	g := r.Group("/", h.sessionMiddleware())
	for _, a := range h.actions() {
		g.Handle(a.trigger.method, a.trigger.path, h.run(a))
	}
}

func (h *Handler) run(a action) gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.guard != nil {
			if err := a.guard(c); err != nil {
				h.reject(c, err)
				return
			}
		}
		a.effect(c)
	}
}

func (h *Handler) reject(c *gin.Context, err error) {
	switch {
	case errors.Is(err, portal.ErrNoSymptoms):
		h.render(c, http.StatusOK, "alert", warningAlert(portal.NoSymptomsMessage))
	case errors.Is(err, portal.ErrAlreadyShown),
		errors.Is(err, portal.ErrNoDiagnosis),
		errors.Is(err, errEmptyMessage):
		c.Status(http.StatusNoContent)
	case errors.Is(err, portal.ErrBusy):
		c.AbortWithStatus(http.StatusConflict)
	case errors.Is(err, portal.ErrUnknownKind):
		c.AbortWithStatus(http.StatusNotFound)
	default:
		h.logger.Error("request rejected", zap.String("path", c.FullPath()), zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (h *Handler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(session.CookieName)
		if err != nil || !validSessionID(id) {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(session.CookieName, id, int(h.sessionTTL.Seconds()), "/", "", h.secure, true)
		}
		c.Set(sessionKey, id)
		c.Next()
	}
}

func validSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func sessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

// load returns the session state, reusing the copy a guard already read.
func (h *Handler) load(c *gin.Context) (*session.State, error) {
	if v, ok := c.Get(stateKey); ok {
		return v.(*session.State), nil
	}
	st, err := h.store.Get(c.Request.Context(), sessionID(c))
	if err != nil {
		return nil, err
	}
	c.Set(stateKey, st)
	return st, nil
}

func (h *Handler) update(c *gin.Context, fn func(*session.State) error) (*session.State, error) {
	st, err := h.store.Update(c.Request.Context(), sessionID(c), fn)
	if err != nil {
		return nil, err
	}
	c.Set(stateKey, st)
	return st, nil
}

func (h *Handler) render(c *gin.Context, status int, name string, data any) {
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("render template", zap.String("template", name), zap.Error(err))
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Data(status, "text/html; charset=utf-8", buf.Bytes())
}

func (h *Handler) storeFailed(c *gin.Context, err error) {
	h.logger.Error("session store", zap.String("session", sessionID(c)), zap.Error(err))
	c.AbortWithStatus(http.StatusInternalServerError)
}

type alert struct {
	Level   string
	Icon    string
	Message string
}

func dangerAlert(msg string) alert {
	return alert{Level: "danger", Icon: "fa-exclamation-circle", Message: msg}
}

func warningAlert(msg string) alert {
	return alert{Level: "warning", Icon: "fa-exclamation-triangle", Message: msg}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := sessionID(c); id != "" {
			fields = append(fields, zap.String("session", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}
