// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package notifier

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
)

//go:embed templates/notifier_template.tmpl
var builtinTemplates embed.FS

// TemplateError is raised by the template_raise helper so a template
// can abort its own rendering in a controlled, logged way. The
// notifier catches it, logs it, and skips only the one org.
type TemplateError struct {
	Msg string
}

func (e *TemplateError) Error() string { return "notifier: template error: " + e.Msg }

// TemplateData is the rendering context exposed to digest templates.
type TemplateData struct {
	Counter          map[string]int
	LastSendTime     string
	Now              string
	ModifiedMin      string
	ModifiedMax      string
	ClientName       string
	ClientOrgID      string
	StreamAPIEnabled bool
	Language         string
}

// Renderer renders per-language digest templates. A template for
// language "xx" is looked up first at <overrideDir>/notifier_xx.tmpl,
// falling back to the built-in template embedded at build time -- the
// same two-tier, override-over-default layout the rest of the
// ambient-content stage templates use.
type Renderer struct {
	overrideDir string
}

// NewRenderer returns a Renderer that prefers templates under
// overrideDir (if non-empty) before falling back to the built-in one.
func NewRenderer(overrideDir string) *Renderer {
	return &Renderer{overrideDir: overrideDir}
}

var subjectPattern = regexp.MustCompile(`(?s)<subject>(.*?)</subject>`)
var bodyPattern = regexp.MustCompile(`(?s)<body>(.*?)</body>`)

// Render renders the digest for language, returning the extracted
// subject and body. A TemplateError from template_raise propagates
// unwrapped so callers can recognize it as the "skip this org" signal.
func (r *Renderer) Render(language string, data TemplateData) (subject, body string, err error) {
	tmpl, err := r.load(language)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		var te *TemplateError
		if errors.As(err, &te) {
			return "", "", te
		}
		return "", "", fmt.Errorf("notifier: render template: %w", err)
	}

	rendered := buf.String()
	sm := subjectPattern.FindStringSubmatch(rendered)
	bm := bodyPattern.FindStringSubmatch(rendered)
	if sm == nil || bm == nil {
		return "", "", fmt.Errorf("notifier: rendered template missing <subject>/<body> tags")
	}
	return html.UnescapeString(strings.TrimSpace(sm[1])), html.UnescapeString(strings.TrimSpace(bm[1])), nil
}

func (r *Renderer) load(language string) (*template.Template, error) {
	funcs := template.FuncMap{
		"template_raise": func(msg string) (string, error) {
			return "", &TemplateError{Msg: msg}
		},
	}

	if r.overrideDir != "" {
		path := filepath.Join(r.overrideDir, fmt.Sprintf("notifier_%s.tmpl", strings.ToLower(language)))
		if t, err := template.New(filepath.Base(path)).Funcs(funcs).ParseFiles(path); err == nil {
			return t, nil
		}
	}

	content, err := builtinTemplates.ReadFile("templates/notifier_template.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notifier: read built-in template: %w", err)
	}
	return template.New("notifier_template.tmpl").Funcs(funcs).Parse(string(content))
}
