// Package uistatic renders the browser page served at the site root.
package uistatic

import (
	_ "embed"
	"html/template"
	"io"
)

//go:embed index.html
var indexSource string

var indexTemplate = template.Must(template.New("index").Parse(indexSource))

type IndexData struct {
	Service   string
	Databases []string
}

func RenderIndex(w io.Writer, data IndexData) error {
	return indexTemplate.Execute(w, data)
}
