// Package dbbrowserctl implements the command-line client for the dbbrowser API.
package dbbrowserctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultBaseURL = "http://localhost:7000"

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// requestError marks failures that happened after the command line was
// accepted. Anything else returned by cobra is a usage error.
type requestError struct {
	err error
}

func (e *requestError) Error() string {
	return e.err.Error()
}

func (e *requestError) Unwrap() error {
	return e.err
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request failed or the API answered with a status >= 400, 2 on
// usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if args == nil {
		args = []string{}
	}
	root := newRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err.Error())
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return 1
	}
	return 2
}

type client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

type browseBody struct {
	DBName       string `json:"db_name"`
	TableName    string `json:"table_name,omitempty"`
	SearchColumn string `json:"search_column,omitempty"`
	SearchText   string `json:"search_text,omitempty"`
}

func newRootCommand(defaults Options) *cobra.Command {
	c := &client{http: defaults.HTTPClient}

	root := &cobra.Command{
		Use:   "dbbrowserctl",
		Short: "Browse database files through a dbbrowser API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return errors.New("a command is required")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()
		return err
	})

	flags := root.PersistentFlags()
	flags.StringVar(&c.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, defaultBaseURL), "dbbrowser API base URL")
	flags.DurationVar(&c.timeout, "timeout", durationOr(defaults.Timeout, 10*time.Second), "HTTP timeout (e.g. 10s)")

	root.AddCommand(
		newGetCommand(c, "health", "Check service liveness", "/v1/health"),
		newGetCommand(c, "ready", "Check service readiness", "/v1/ready"),
		newGetCommand(c, "databases", "List database files", "/v1/databases"),
		newTablesCommand(c),
		newColumnsCommand(c),
		newDataCommand(c),
		newExportCommand(c),
		newPublishCommand(c),
	)
	return root
}

func newGetCommand(c *client, name, short, path string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, _, err := c.do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			return printBody(cmd.OutOrStdout(), body)
		},
	}
}

func newTablesCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "tables <db>",
		Short: "List tables of a database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.postAndPrint(cmd, "/get_tables", browseBody{DBName: args[0]})
		},
	}
}

func newColumnsCommand(c *client) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <db> <table>",
		Short: "List columns of a table",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.postAndPrint(cmd, "/get_columns", browseBody{DBName: args[0], TableName: args[1]})
		},
	}
}

func newDataCommand(c *client) *cobra.Command {
	var search browseBody
	cmd := &cobra.Command{
		Use:   "data <db> <table>",
		Short: "Show rows of a table, optionally filtered by substring search",
		Example: `  dbbrowserctl data shop.db users
  dbbrowserctl data shop.db users --search-column name --search-text lic`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.postAndPrint(cmd, "/get_data", search.with(args))
		},
	}
	addSearchFlags(cmd.Flags(), &search)
	return cmd
}

func newExportCommand(c *client) *cobra.Command {
	var search browseBody
	var out string
	cmd := &cobra.Command{
		Use:   "export <db> <table>",
		Short: "Download a table as a Parquet file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(search.with(args))
			if err != nil {
				return err
			}
			body, header, err := c.do(cmd.Context(), http.MethodPost, "/export_table", payload)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, body, 0o644); err != nil {
				return &requestError{err: fmt.Errorf("write %s: %w", out, err)}
			}
			summary, _ := json.Marshal(map[string]any{
				"file":  out,
				"bytes": len(body),
				"rows":  header.Get("X-Row-Count"),
			})
			return printBody(cmd.OutOrStdout(), summary)
		},
	}
	addSearchFlags(cmd.Flags(), &search)
	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file for the Parquet export")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newPublishCommand(c *client) *cobra.Command {
	var search browseBody
	cmd := &cobra.Command{
		Use:   "publish <db> <table>",
		Short: "Export a table as Parquet into the configured object store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.postAndPrint(cmd, "/publish_table", search.with(args))
		},
	}
	addSearchFlags(cmd.Flags(), &search)
	return cmd
}

func addSearchFlags(flags *pflag.FlagSet, body *browseBody) {
	flags.StringVar(&body.SearchColumn, "search-column", "", "column to search")
	flags.StringVar(&body.SearchText, "search-text", "", "substring to look for (case-sensitive)")
}

func (b browseBody) with(args []string) browseBody {
	b.DBName = args[0]
	b.TableName = args[1]
	return b
}

func (c *client) postAndPrint(cmd *cobra.Command, path string, request browseBody) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}
	body, _, err := c.do(cmd.Context(), http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	return printBody(cmd.OutOrStdout(), body)
}

func (c *client) do(ctx context.Context, method, path string, payload []byte) ([]byte, http.Header, error) {
	httpClient := c.http
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.timeout}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, &requestError{err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, &requestError{err: fmt.Errorf("request failed: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &requestError{err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode >= 400 {
		return nil, nil, &requestError{err: &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}}
	}
	return body, resp.Header, nil
}

func printBody(w io.Writer, body []byte) error {
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(w, pretty)
		return nil
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(w, string(body))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
