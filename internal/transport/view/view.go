package view

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	layoutFile     = "templates/layout.html"
	componentsFile = "templates/components.html"
)

// Page is what a handler hands to the renderer. Data is also the JSON body
// for clients asking for application/json.
type Page struct {
	Template string               `json:"-"`
	Title    string               `json:"title"`
	Data     any                  `json:"data,omitempty"`
	User     *session.User        `json:"user,omitempty"`
	Nav      []permission.NavItem `json:"-"`
	Flashes  []session.Flash      `json:"flashes,omitempty"`
	// Refresh, in seconds, reloads the page (loading and success screens).
	Refresh     int    `json:"refresh,omitempty"`
	RedirectURL string `json:"redirect,omitempty"`
}

// Assets serves the stylesheet the layout links to, mounted at /static/.
func Assets() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type Renderer struct {
	pages map[string]*template.Template
}

func New() (*Renderer, error) {
	entries, err := fs.ReadDir(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: map[string]*template.Template{}}
	for _, e := range entries {
		file := "templates/" + e.Name()
		if e.IsDir() || file == layoutFile || file == componentsFile {
			continue
		}
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		tpl, err := template.New(name).Funcs(funcs).ParseFS(templateFS, layoutFile, componentsFile, file)
		if err != nil {
			return nil, fmt.Errorf("view: parse %s: %w", name, err)
		}
		r.pages[name] = tpl
	}
	return r, nil
}

func (r *Renderer) Has(name string) bool {
	_, ok := r.pages[name]
	return ok
}

// Render executes the page into a buffer first so a template failure never
// leaves a half-written response.
func (r *Renderer) Render(w io.Writer, page Page) error {
	tpl, ok := r.pages[page.Template]
	if !ok {
		return fmt.Errorf("view: unknown template %q", page.Template)
	}
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "layout", page); err != nil {
		return fmt.Errorf("view: render %s: %w", page.Template, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

var funcs = template.FuncMap{
	"badge":   StatusBadge,
	"initial": func(u *session.User) string { return u.Initials() },
	"add":     func(a, b int) int { return a + b },
	"sub":     func(a, b int) int { return a - b },
}
