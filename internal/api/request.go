package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "autotrade-console/internal/errors"
	"autotrade-console/internal/logging"
	"autotrade-console/internal/resilience"
)

// errorPayload is the application-level error shape; it may arrive with any
// status code.
type errorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Success *bool  `json:"success"`
}

// do issues a request through the endpoint group's breaker and returns the
// raw JSON body of a successful response. timeout overrides the client
// default when positive.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (json.RawMessage, error) {
	return c.sendRaw(ctx, method, path, query, body, timeout, true)
}

// doUnguarded is do without the breaker. Per-ticker signal calls use it:
// one ticker's 5xx must not fail fast the rest of a fan-out, and the
// orchestrator owns their retries.
func (c *Client) doUnguarded(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration) (json.RawMessage, error) {
	return c.sendRaw(ctx, method, path, query, body, timeout, false)
}

func (c *Client) sendRaw(ctx context.Context, method, path string, query url.Values, body any, timeout time.Duration, guarded bool) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	call := func(ctx context.Context) (json.RawMessage, error) {
		return c.roundTrip(ctx, method, path, query, body)
	}
	if c.breakers == nil || !guarded {
		return call(ctx)
	}
	data, err := resilience.Call(ctx, c.breakers.For(endpointGroup(path)), call)
	if err == resilience.ErrCircuitOpen {
		return nil, apperrors.NewNetworkError(path, err)
	}
	return data, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var bodyReader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(payload)
	}

	urlStr := c.baseURL + path
	if len(query) > 0 {
		urlStr += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	requestID := logging.RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		netErr := apperrors.NewNetworkError(path, err)
		if ctx.Err() == context.DeadlineExceeded {
			netErr.Err = fmt.Errorf("%w: %v", apperrors.ErrTimeout, err)
		}
		logging.LogAPICall(c.logger, method, path, 0, time.Since(start), netErr)
		return nil, netErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		netErr := apperrors.NewNetworkError(path, fmt.Errorf("reading response: %w", err))
		logging.LogAPICall(c.logger, method, path, resp.StatusCode, time.Since(start), netErr)
		return nil, netErr
	}

	apiErr := checkResponse(method, path, resp.StatusCode, data)
	logging.LogAPICall(c.logger.With().Str("request_id", requestID).Logger(), method, path, resp.StatusCode, time.Since(start), apiErr)
	if apiErr != nil {
		return nil, apiErr
	}
	return data, nil
}

// checkResponse converts non-2xx statuses and {"error": ...} payloads into
// an APIError carrying the server's message.
func checkResponse(method, path string, status int, data []byte) error {
	var payload errorPayload
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		_ = json.Unmarshal(trimmed, &payload)
	}

	if status < 200 || status > 299 {
		msg := payload.Error
		if msg == "" {
			msg = payload.Message
		}
		if msg == "" && len(trimmed) > 0 && trimmed[0] != '{' && trimmed[0] != '<' {
			msg = strings.TrimSpace(string(trimmed))
		}
		return apperrors.NewAPIError(method, path, status, msg)
	}

	if payload.Error != "" {
		return apperrors.NewAPIError(method, path, status, payload.Error)
	}
	if payload.Success != nil && !*payload.Success {
		msg := payload.Message
		if msg == "" {
			msg = "request was not successful"
		}
		return apperrors.NewAPIError(method, path, status, msg)
	}
	return nil
}

// decodeField decodes the first present key of an object body into out.
// A bare value (array, or object without any of the keys) is decoded
// directly, which covers endpoints that skip the envelope.
func decodeField(data json.RawMessage, out any, keys ...string) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	isObject := trimmed[0] == '{'

	if isObject && len(keys) > 0 {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		for _, key := range keys {
			raw, ok := envelope[key]
			if !ok || isNull(raw) {
				continue
			}
			err := json.Unmarshal(raw, out)
			if err == nil {
				return nil
			}
			// Same key, different meaning (e.g. "status" as a string).
			if !errors.As(err, &typeErr) {
				return fmt.Errorf("decoding %q: %w", key, err)
			}
		}
	}

	if err := json.Unmarshal(trimmed, out); err != nil {
		// An envelope without the collection means "nothing to report".
		if isObject && len(keys) > 0 && errors.As(err, &typeErr) {
			return nil
		}
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any, keys ...string) error {
	data, err := c.do(ctx, http.MethodGet, path, query, nil, 0)
	if err != nil {
		return err
	}
	return decodeField(data, out, keys...)
}

func (c *Client) send(ctx context.Context, method, path string, body any, timeout time.Duration, out any, keys ...string) error {
	data, err := c.do(ctx, method, path, nil, body, timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return decodeField(data, out, keys...)
}
