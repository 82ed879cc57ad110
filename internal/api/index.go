package api

import (
	"bytes"
	"net/http"
	"time"

	"github.com/duckmesh/dbbrowser/internal/api/uistatic"
	"github.com/duckmesh/dbbrowser/internal/config"
)

func handleIndex(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireBrowser(deps, w, r) {
		return
	}
	started := time.Now()
	names, err := deps.Browser.ListDatabases(r.Context())
	observeGateway(r.Context(), deps, "list_databases", started, err)
	if err != nil {
		writeGatewayError(r.Context(), w, err)
		return
	}

	var page bytes.Buffer
	if err := uistatic.RenderIndex(&page, uistatic.IndexData{Service: cfg.Service.Name, Databases: names}); err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "RENDER_FAILED", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page.Bytes())
}
