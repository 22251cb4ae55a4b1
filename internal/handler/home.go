// Package handler contains the HTTP handlers of the cupcakes API.
//
// Handlers parse the request, call a service, and write the response.
// Business rules live in internal/service; status code mapping lives in
// response.go. Handlers behind the session gate receive the caller's
// Session as an argument instead of digging it out of the request.
package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed templates/*.html
var templateFiles embed.FS

// HomeHandler serves GET /.
type HomeHandler struct {
	templates    *template.Template
	loginEnabled bool
	logger       *slog.Logger
}

// NewHomeHandler parses the embedded page templates once at startup.
// loginEnabled controls whether the logged-out page links to /login.
func NewHomeHandler(loginEnabled bool, logger *slog.Logger) (*HomeHandler, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/home.html")
	if err != nil {
		return nil, err
	}
	return &HomeHandler{
		templates:    tmpl,
		loginEnabled: loginEnabled,
		logger:       logger,
	}, nil
}

type homePage struct {
	Title        string
	LoggedIn     bool
	LoginEnabled bool
	Nickname     string
	Email        string
	Picture      string
}

// Home greets the caller by nickname, or says "Logged out".
//
// html/template escapes every value, so a nickname such as
// "<script>" renders as text rather than markup.
func (h *HomeHandler) Home(w http.ResponseWriter, r *http.Request, s Session) {
	page := homePage{
		Title:        "Cupcakes",
		LoginEnabled: h.loginEnabled,
	}
	if claim, ok := s.Identity.Claim(); ok {
		page.LoggedIn = true
		page.Nickname = claim.Nickname
		page.Email = claim.Email
		page.Picture = claim.Picture
	}

	// Render into a buffer first so a template error can still become a
	// clean 500 instead of half a page.
	var buf bytes.Buffer
	if err := h.templates.ExecuteTemplate(&buf, "home.html", page); err != nil {
		logAndWriteError(h.logger, w, r, "rendering home page failed", err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
