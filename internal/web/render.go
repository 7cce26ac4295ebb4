// Package web renders the HTML pages and fragments of the application.
package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

//go:embed templates/*.html templates/partials/*.html
var files embed.FS

var funcs = template.FuncMap{
	"timefmt": func(t time.Time) string {
		return t.Local().Format("Jan 2, 15:04")
	},
}

// Renderer executes embedded templates. Pages are addressed by file
// name, partials by their defined name.
type Renderer struct {
	t      *template.Template
	logger zerolog.Logger
}

func NewRenderer(logger zerolog.Logger) *Renderer {
	t := template.Must(template.New("").Funcs(funcs).ParseFS(files,
		"templates/*.html", "templates/partials/*.html"))
	return &Renderer{t: t, logger: logger}
}

// HTML renders the named template. The body is buffered so a template
// failure yields a clean error page instead of a truncated response.
func (r *Renderer) HTML(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := r.t.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error().Err(err).Str("template", name).Msg("template render failed")
		r.ServerError(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (r *Renderer) NotFound(w http.ResponseWriter) {
	r.HTML(w, http.StatusNotFound, "notfound.html", nil)
}

func (r *Renderer) ServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte("<!doctype html><title>Error</title><h1>Something went wrong</h1>"))
}
