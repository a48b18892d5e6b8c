// Package aria2 implements dc.Daemon on top of the aria2 JSON-RPC interface.
package aria2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/italolelis/aria2_downloader/internal/dc"
	"github.com/italolelis/aria2_downloader/internal/logctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	methodAddURI     = "aria2.addUri"
	methodTellStatus = "aria2.tellStatus"
	methodGetFiles   = "aria2.getFiles"
	methodGetVersion = "aria2.getVersion"

	// aria2 answers a wrong --rpc-secret with code 1 and this message.
	unauthorizedMessage = "Unauthorized"

	maxErrorBody = 4096
)

type Client struct {
	RPCURL     string
	secret     string
	httpClient *http.Client
	requestID  atomic.Uint64
}

var _ dc.Daemon = (*Client)(nil)

// NewClient creates a client for the JSON-RPC endpoint at rpcURL. When secret is
// set it is sent as the "token:" parameter aria2 expects with --rpc-secret.
func NewClient(rpcURL, secret string, timeout time.Duration) *Client {
	return &Client{
		RPCURL: rpcURL,
		secret: secret,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Authenticate calls aria2.getVersion, which fails when the secret is wrong.
func (c *Client) Authenticate(ctx context.Context) error {
	logger := logctx.LoggerFromContext(ctx).With("method", methodGetVersion)

	var version struct {
		Version         string   `json:"version"`
		EnabledFeatures []string `json:"enabledFeatures"`
	}

	if err := c.call(ctx, methodGetVersion, nil, &version); err != nil {
		logger.ErrorContext(ctx, "failed to reach aria2", "err", err)

		return err
	}

	logger.InfoContext(ctx, "connected to aria2", "version", version.Version, "features", version.EnabledFeatures)

	return nil
}

// AddURI implements dc.Daemon.AddURI with aria2.addUri.
func (c *Client) AddURI(ctx context.Context, uris []string, opts dc.AddOptions) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("method", methodAddURI)

	var gid string
	if err := c.call(ctx, methodAddURI, []any{uris, encodeOptions(opts)}, &gid); err != nil {
		return "", err
	}

	logger.DebugContext(ctx, "transfer added", "gid", gid, "dir", opts.Dir)

	return gid, nil
}

// TellStatus implements dc.Daemon.TellStatus with aria2.tellStatus.
func (c *Client) TellStatus(ctx context.Context, gid string) (dc.Status, error) {
	var status dc.Status
	if err := c.call(ctx, methodTellStatus, []any{gid}, &status); err != nil {
		return nil, err
	}

	return status, nil
}

// GetFiles implements dc.Daemon.GetFiles with aria2.getFiles.
func (c *Client) GetFiles(ctx context.Context, gid string) ([]dc.File, error) {
	var files []dc.File
	if err := c.call(ctx, methodGetFiles, []any{gid}, &files); err != nil {
		return nil, err
	}

	return files, nil
}

// encodeOptions converts options to the string-valued map aria2 expects.
func encodeOptions(opts dc.AddOptions) map[string]string {
	encoded := map[string]string{
		"continue": strconv.FormatBool(opts.Continue),
	}

	if opts.Dir != "" {
		encoded["dir"] = opts.Dir
	}

	if opts.MaxConnectionPerServer > 0 {
		encoded["max-connection-per-server"] = strconv.Itoa(opts.MaxConnectionPerServer)
	}

	if opts.MaxDownloadLimit != "" {
		encoded["max-download-limit"] = opts.MaxDownloadLimit
	}

	return encoded
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	logger := logctx.LoggerFromContext(ctx).With("method", method)

	if c.secret != "" {
		params = append([]any{"token:" + c.secret}, params...)
	}

	if params == nil {
		params = []any{}
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      strconv.FormatUint(c.requestID.Add(1), 10),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.RPCURL, bytes.NewReader(body))
	if err != nil {
		logger.ErrorContext(ctx, "failed to create new request with context", "err", err)

		return fmt.Errorf("failed to create %s request: %w", method, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &dc.NetworkError{Operation: method, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &dc.NetworkError{Operation: method, StatusCode: resp.StatusCode, APIMessage: "failed to read response", Err: err}
	}

	// aria2 reports RPC errors with a 4xx status and a JSON-RPC error body, so the
	// body is inspected before the status code.
	var rpcResp rpcResponse
	if decodeErr := json.Unmarshal(raw, &rpcResp); decodeErr == nil && rpcResp.Error != nil {
		rpcErr := &dc.RPCError{Method: method, Code: rpcResp.Error.Code, Message: rpcResp.Error.Message}

		if rpcResp.Error.Code == 1 && strings.EqualFold(rpcResp.Error.Message, unauthorizedMessage) {
			return &dc.AuthenticationError{Operation: method, Err: rpcErr}
		}

		logger.DebugContext(ctx, "rpc error", "code", rpcErr.Code, "message", rpcErr.Message)

		return rpcErr
	} else if decodeErr != nil && resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return &dc.NetworkError{Operation: method, StatusCode: resp.StatusCode, APIMessage: "invalid JSON-RPC response", Err: decodeErr}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		logger.ErrorContext(ctx, "non-2xx response", "status", resp.StatusCode, "body", truncate(raw))

		return &dc.NetworkError{Operation: method, StatusCode: resp.StatusCode, APIMessage: truncate(raw)}
	}

	if result == nil {
		return nil
	}

	if len(rpcResp.Result) == 0 {
		return &dc.NetworkError{Operation: method, StatusCode: resp.StatusCode, APIMessage: "missing result", Err: errors.New("empty result")}
	}

	if err := json.Unmarshal(rpcResp.Result, result); err != nil {
		return &dc.NetworkError{Operation: method, StatusCode: resp.StatusCode, APIMessage: "unexpected result shape", Err: err}
	}

	return nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}

	return strings.TrimSpace(string(b))
}
