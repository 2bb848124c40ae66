package web

import (
	"embed"
	"html/template"
	"io/fs"
)

//go:embed static
var staticFiles embed.FS

//go:embed templates
var templateFiles embed.FS

// StaticFS is the embedded static file system with the "static/" prefix stripped.
var StaticFS fs.FS

// Templates holds the login and dashboard pages.
var Templates *template.Template

func init() {
	var err error

	StaticFS, err = fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	Templates = template.Must(template.New("").ParseFS(templateFiles,
		"templates/*.html",
		"templates/partials/*.html",
	))
}
