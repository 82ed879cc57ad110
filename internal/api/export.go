package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/duckmesh/dbbrowser/internal/export"
	"github.com/duckmesh/dbbrowser/internal/gateway"
	"github.com/duckmesh/dbbrowser/internal/observability"
	"github.com/duckmesh/dbbrowser/internal/storage"
)

// encodeTable runs the same query as get_data and encodes the result. It
// writes the error response itself on failure.
func encodeTable(deps Dependencies, w http.ResponseWriter, r *http.Request, operation string) (browseRequest, export.Result, bool) {
	req, ok := decodeBrowseRequest(w, r, true)
	if !ok {
		return browseRequest{}, export.Result{}, false
	}
	started := time.Now()
	result, err := deps.Browser.FetchData(r.Context(), req.dataRequest())
	observeGateway(r.Context(), deps, operation, started, err)
	if err != nil {
		writeGatewayError(r.Context(), w, err)
		return browseRequest{}, export.Result{}, false
	}
	encoded, err := encodeResult(result)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", err.Error())
		return browseRequest{}, export.Result{}, false
	}
	return req, encoded, true
}

func encodeResult(result gateway.DataResult) (export.Result, error) {
	encoded, err := export.EncodeParquet(result.Columns, result.Rows)
	if err != nil {
		return export.Result{}, fmt.Errorf("encode parquet: %w", err)
	}
	return encoded, nil
}

func handleExportTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireBrowser(deps, w, r) {
		return
	}
	req, encoded, ok := encodeTable(deps, w, r, "export_table")
	if !ok {
		return
	}
	observability.AddExportBytes("download", int64(len(encoded.Data)))

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFileName(req, now(deps))))
	w.Header().Set("Content-Length", strconv.Itoa(len(encoded.Data)))
	w.Header().Set("X-Row-Count", strconv.FormatInt(encoded.RowCount, 10))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded.Data)
}

func handlePublishTable(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.ObjectStore == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "PUBLISH_NOT_CONFIGURED", "object store is not configured")
		return
	}
	if !requireBrowser(deps, w, r) {
		return
	}
	req, encoded, ok := encodeTable(deps, w, r, "publish_table")
	if !ok {
		return
	}

	key, err := storage.BuildExportPath(req.DBName, req.TableName, now(deps))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	info, err := deps.ObjectStore.Put(r.Context(), key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), storage.PutOptions{ContentType: export.ContentType})
	if err != nil {
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "publish export failed", "database", req.DBName, "table", req.TableName, "key", key, "error", err)
		}
		writeError(r.Context(), w, http.StatusInternalServerError, "PUBLISH_FAILED", err.Error())
		return
	}
	observability.AddExportBytes("object_store", int64(len(encoded.Data)))

	objectKey := info.Key
	if objectKey == "" {
		objectKey = key
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"object_key": objectKey,
		"size":       len(encoded.Data),
		"rows":       encoded.RowCount,
	})
}

func exportFileName(req browseRequest, at time.Time) string {
	key, err := storage.BuildExportPath(req.DBName, req.TableName, at)
	if err != nil {
		return "export.parquet"
	}
	return strings.ReplaceAll(key, "/", "_")
}

func now(deps Dependencies) time.Time {
	if deps.Now != nil {
		return deps.Now()
	}
	return time.Now()
}
