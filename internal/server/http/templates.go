package httpx

import (
	"embed"
	"fmt"
	"html/template"
	"io"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"home", "login", "register", "profile"}

// pages holds one template set per page, each combined with the layout.
type pages struct {
	sets map[string]*template.Template
}

func loadPages() (*pages, error) {
	p := &pages{sets: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		t, err := template.New("layout.html").ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		p.sets[name] = t
	}
	return p, nil
}

func (p *pages) render(w io.Writer, name string, data *pageData) error {
	t, ok := p.sets[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return t.ExecuteTemplate(w, "layout.html", data)
}
