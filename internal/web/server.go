// Package web serves the browser front end: an upload form, the chat
// transcript and a question box, all backed by a single session.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"edital-assistant/internal/models"
	"edital-assistant/internal/parser"
	"edital-assistant/internal/session"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	maxUploadBytes = 64 << 20
	busyMessage    = "Outra operação está em andamento. Aguarde e tente novamente."
)

type status struct {
	Kind    string
	Message string
}

type message struct {
	Role string
	HTML template.HTML
}

type page struct {
	Messages []message
	Status   *status
	Ready    bool
}

type Server struct {
	session  *session.Session
	tmpl     *template.Template
	markdown goldmark.Markdown

	// busy serializes interactions; a second one is refused, not queued.
	busy sync.Mutex

	mu     sync.Mutex
	status *status
}

func NewServer(sess *session.Session) (*Server, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Server{
		session:  sess,
		tmpl:     tmpl,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /process", s.exclusive(s.handleProcess))
	mux.HandleFunc("POST /ask", s.exclusive(s.handleAsk))
	mux.HandleFunc("POST /reset", s.exclusive(s.handleReset))
	return loggingMiddleware(mux)
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Error shutting down server")
		}
	}()

	log.Info().Str("addr", addr).Msg("Web server listening")
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) exclusive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.busy.TryLock() {
			http.Error(w, busyMessage, http.StatusConflict)
			return
		}
		defer s.busy.Unlock()
		next(w, r)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.messages(s.session.Turns())
	if err != nil {
		log.Error().Err(err).Msg("Error rendering transcript")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	p := page{Messages: msgs, Status: s.takeStatus(), Ready: s.session.Ready()}
	if err := s.tmpl.ExecuteTemplate(&buf, "index.html", p); err != nil {
		log.Error().Err(err).Msg("Error executing template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	err := r.ParseMultipartForm(maxUploadBytes)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.Warn().Err(err).Msg("Error reading upload")
		s.setStatus(string(session.KindInput), "Não foi possível receber os arquivos enviados.")
		return
	}

	var sources []parser.Source
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
		for _, fh := range r.MultipartForm.File["documents"] {
			sources = append(sources, upload{fh})
		}
	}

	report, err := s.session.Process(r.Context(), sources)
	if err != nil {
		s.fail(err)
		return
	}
	s.setStatus("success", fmt.Sprintf("%d edital(is) processado(s): %d página(s), %d trecho(s) indexado(s).",
		report.Documents, report.Pages, report.Chunks))
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	if _, err := s.session.Ask(r.Context(), r.FormValue("question")); err != nil {
		s.fail(err)
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	s.setStatus("info", "Conversa reiniciada. Carregue novos editais para continuar.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) fail(err error) {
	kind, msg := session.Describe(err)
	log.Error().Err(err).Str("kind", string(kind)).Msg("Interaction failed")
	s.setStatus(string(kind), msg)
}

func (s *Server) setStatus(kind, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = &status{Kind: kind, Message: msg}
}

// takeStatus returns the pending banner once.
func (s *Server) takeStatus() *status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	s.status = nil
	return st
}

// messages renders the greeting followed by the transcript.
func (s *Server) messages(turns []models.Turn) ([]message, error) {
	greeting, err := s.renderMarkdown(models.Greeting)
	if err != nil {
		return nil, err
	}
	out := make([]message, 0, len(turns)+1)
	out = append(out, message{Role: models.RoleAssistant.String(), HTML: greeting})

	for _, t := range turns {
		switch t.Role {
		case models.RoleHuman:
			out = append(out, message{Role: t.Role.String(), HTML: template.HTML(template.HTMLEscapeString(t.Content))})
		case models.RoleAssistant:
			h, err := s.renderMarkdown(t.Content)
			if err != nil {
				return nil, err
			}
			out = append(out, message{Role: t.Role.String(), HTML: h})
		default:
			return nil, fmt.Errorf("unknown role %s", t.Role)
		}
	}
	return out, nil
}

// renderMarkdown converts model output to HTML. Raw HTML in the source is
// dropped by goldmark's default renderer.
func (s *Server) renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// upload adapts a multipart file to a parser source.
type upload struct {
	fh *multipart.FileHeader
}

func (u upload) Name() string                 { return u.fh.Filename }
func (u upload) Open() (io.ReadCloser, error) { return u.fh.Open() }

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
