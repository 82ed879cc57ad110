package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/duckmesh/dbbrowser/internal/gateway"
	"github.com/duckmesh/dbbrowser/internal/observability"
)

type browseRequest struct {
	DBName       string `json:"db_name"`
	TableName    string `json:"table_name"`
	SearchColumn string `json:"search_column"`
	SearchText   string `json:"search_text"`
}

func (b browseRequest) dataRequest() gateway.DataRequest {
	return gateway.DataRequest{
		Database:     b.DBName,
		Table:        b.TableName,
		SearchColumn: b.SearchColumn,
		SearchText:   b.SearchText,
	}
}

// decodeBrowseRequest writes the error response itself and returns false when
// the body is unusable.
func decodeBrowseRequest(w http.ResponseWriter, r *http.Request, needTable bool) (browseRequest, bool) {
	var req browseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body: "+err.Error())
		return browseRequest{}, false
	}
	req.DBName = strings.TrimSpace(req.DBName)
	if req.DBName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_DATABASE", "db_name is required")
		return browseRequest{}, false
	}
	if needTable && req.TableName == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "TABLE_REQUIRED", "table_name is required")
		return browseRequest{}, false
	}
	return req, true
}

func handleListDatabases(deps Dependencies, w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, map[string]any{"databases": names})
}

func handleGetTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireBrowser(deps, w, r) {
		return
	}
	req, ok := decodeBrowseRequest(w, r, false)
	if !ok {
		return
	}
	started := time.Now()
	tables, err := deps.Browser.ListTables(r.Context(), req.DBName)
	observeGateway(r.Context(), deps, "list_tables", started, err)
	if err != nil {
		writeGatewayError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, tables)
}

func handleGetColumns(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireBrowser(deps, w, r) {
		return
	}
	req, ok := decodeBrowseRequest(w, r, true)
	if !ok {
		return
	}
	started := time.Now()
	columns, err := deps.Browser.ListColumns(r.Context(), req.DBName, req.TableName)
	observeGateway(r.Context(), deps, "list_columns", started, err)
	if err != nil {
		writeGatewayError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, columns)
}

func handleGetData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireBrowser(deps, w, r) {
		return
	}
	req, ok := decodeBrowseRequest(w, r, true)
	if !ok {
		return
	}
	started := time.Now()
	result, err := deps.Browser.FetchData(r.Context(), req.dataRequest())
	observeGateway(r.Context(), deps, "fetch_data", started, err)
	if err != nil {
		writeGatewayError(r.Context(), w, err)
		return
	}
	observability.ObserveRowsReturned(len(result.Rows))
	writeJSON(w, http.StatusOK, map[string]any{
		"columns": result.Columns,
		"data":    result.Rows,
	})
}

func requireBrowser(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Browser == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "BROWSER_NOT_CONFIGURED", "database gateway is not configured")
		return false
	}
	return true
}

func writeGatewayError(ctx context.Context, w http.ResponseWriter, err error) {
	var invalid *gateway.InvalidArgumentError
	if errors.As(err, &invalid) {
		writeError(ctx, w, http.StatusBadRequest, "INVALID_ARGUMENT", invalid.Error())
		return
	}
	writeError(ctx, w, http.StatusInternalServerError, "STORAGE_ERROR", err.Error())
}

func gatewayOutcome(err error) string {
	if err == nil {
		return "ok"
	}
	var invalid *gateway.InvalidArgumentError
	if errors.As(err, &invalid) {
		return "invalid_argument"
	}
	return "storage_error"
}

func observeGateway(ctx context.Context, deps Dependencies, operation string, started time.Time, err error) {
	outcome := gatewayOutcome(err)
	observability.ObserveGatewayOperation(operation, outcome, time.Since(started))
	if outcome != "storage_error" || deps.Logger == nil {
		return
	}
	attrs := []any{
		"operation", operation,
		"error", err,
		"trace_id", observability.TraceIDFromContext(ctx),
	}
	var storageErr *gateway.StorageError
	if errors.As(err, &storageErr) {
		if storageErr.Database != "" {
			attrs = append(attrs, "database", storageErr.Database)
		}
		if storageErr.Engine != "" {
			attrs = append(attrs, "engine", storageErr.Engine)
		}
	}
	deps.Logger.ErrorContext(ctx, "gateway operation failed", attrs...)
}
