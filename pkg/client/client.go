// Package client uploads source files to a dirsync server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/dirsync/internal/logging"
	"github.com/fruitsalade/dirsync/pkg/models"
	"github.com/fruitsalade/dirsync/pkg/protocol"
	"github.com/fruitsalade/dirsync/pkg/retry"
)

// DefaultTimeout bounds one upload request, including the response.
const DefaultTimeout = 5 * time.Second

// TokenSource supplies a bearer token per request.
type TokenSource interface {
	Token() (string, error)
}

// Config holds client configuration.
type Config struct {
	ServerURL   string // full upload URL, e.g. http://host:3000/upload
	Timeout     time.Duration
	DryRun      bool
	Tokens      TokenSource
	RetryConfig retry.Config // used by WaitForServer only
}

// Client sends files to the server, one POST per file.
type Client struct {
	serverURL   string
	healthURL   string
	httpClient  *http.Client
	dryRun      bool
	tokens      TokenSource
	retryConfig retry.Config
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryConfig.Attempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	return &Client{
		serverURL: cfg.ServerURL,
		healthURL: healthURL(cfg.ServerURL),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   cfg.Timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: cfg.Timeout,
			},
		},
		dryRun:      cfg.DryRun,
		tokens:      cfg.Tokens,
		retryConfig: cfg.RetryConfig,
	}
}

func healthURL(serverURL string) string {
	u, err := url.Parse(serverURL)
	if err != nil {
		return serverURL
	}
	u.Path = protocol.HealthPath
	u.RawQuery = ""
	return u.String()
}

// Result is the outcome of one upload attempt. Upload never returns an error:
// failures are reported through OK=false and Cause.
type Result struct {
	OK        bool
	Simulated bool
	Status    int
	Cause     string
	Stored    []protocol.StoredFile
}

// TransferError describes why an upload failed.
type TransferError struct {
	Path   string
	Status int
	Err    error
}

func (e *TransferError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload %s: status %d: %v", e.Path, e.Status, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Upload sends entry's content and metadata in a single multipart POST.
// Success requires status 200 and, for JSON bodies, "success": true.
func (c *Client) Upload(ctx context.Context, entry models.PathCatalog) Result {
	log := logging.WithContext(ctx).With(zap.String("file", entry.AbsolutePath))

	if c.dryRun {
		log.Info("dry run: would upload file", zap.String("relative_path", entry.RelativePath))
		return Result{OK: true, Simulated: true}
	}

	stored, status, err := c.send(ctx, entry)
	if err != nil {
		te := &TransferError{Path: entry.AbsolutePath, Status: status, Err: err}
		log.Error("upload failed", zap.Int("status", status), zap.Error(err))
		return Result{Status: status, Cause: te.Error()}
	}

	for _, f := range stored {
		if f.Renamed {
			log.Warn("server stored upload under a new name", zap.String("stored_as", f.Path))
		}
	}
	log.Info("uploaded file", zap.String("relative_path", entry.RelativePath), zap.Int64("size", entry.Size))
	return Result{OK: true, Status: status, Stored: stored}
}

func (c *Client) send(ctx context.Context, entry models.PathCatalog) ([]protocol.StoredFile, int, error) {
	f, err := os.Open(entry.AbsolutePath)
	if err != nil {
		return nil, 0, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBody(mw, entry, f))
	}()
	defer pr.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL, pr)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, 0, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, errors.New(errorMessage(resp, body))
	}

	if !isJSON(resp.Header.Get("Content-Type")) {
		return nil, resp.StatusCode, nil
	}

	var ur protocol.UploadResponse
	if err := json.Unmarshal(body, &ur); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("malformed response: %w", err)
	}
	if !ur.Success {
		msg := ur.Message
		if msg == "" {
			msg = "server did not confirm success"
		}
		return nil, resp.StatusCode, errors.New(msg)
	}
	return ur.Files, resp.StatusCode, nil
}

// writeBody emits the metadata fields before the file part so the server
// can stream the content straight to its final location.
func writeBody(mw *multipart.Writer, entry models.PathCatalog, content io.Reader) error {
	fields := [][2]string{
		{protocol.FieldRelativePath, entry.Dir()},
		{protocol.FieldCreatedAt, protocol.FormatTime(entry.CreatedAt)},
		{protocol.FieldModifiedAt, protocol.FormatTime(entry.ModifiedAt)},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile(protocol.FieldFile, entry.Name())
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	return mw.Close()
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "application/json"
}

func errorMessage(resp *http.Response, body []byte) string {
	if isJSON(resp.Header.Get("Content-Type")) {
		var er protocol.ErrorResponse
		if json.Unmarshal(body, &er) == nil && er.Error != "" {
			return er.Error
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return msg
	}
	return resp.Status
}

// Ping checks the server's health endpoint. Client errors (4xx) are
// permanent; connection failures and 5xx are worth retrying.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("server returned %d", resp.StatusCode)
	default:
		return retry.Permanent(fmt.Errorf("server returned %d", resp.StatusCode))
	}
}

// WaitForServer pings the server with backoff until it answers or the
// attempts run out. Dry-run clients never contact the server.
func (c *Client) WaitForServer(ctx context.Context) error {
	if c.dryRun {
		return nil
	}
	return retry.Do(ctx, c.retryConfig, func() error {
		return c.Ping(ctx)
	}, func(attempt int, err error, wait time.Duration) {
		logging.Warn("server not reachable yet",
			zap.String("url", c.healthURL),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})
}
