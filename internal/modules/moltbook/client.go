package moltbook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"moltbridge/server/internal/observability"
)

// No client-level timeout: each call carries its own deadline from the
// resolved configuration.
var httpClient = &http.Client{}

// call performs one authenticated request against the Moltbook API and
// normalizes the outcome: decoded JSON value on success, a structured error
// otherwise. Config (and with it the credential) is re-resolved on every
// call. Extra headers are merged after the defaults, so a caller can
// deliberately override them; no current tool does.
func (m *MoltbookModule) call(ctx context.Context, method, path string, body any, headers map[string]string) (any, error) {
	cfg, err := resolveConfig(m.config())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	ctx, span := observability.StartBridgeSpan(ctx, method, path)
	defer span.End()

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal request body")
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.apiBase+path, reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+cfg.apiKey)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(ErrTimeout, "%s %s after %s", method, path, cfg.timeout)
		}
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(ErrTimeout, "%s %s after %s", method, path, cfg.timeout)
		}
		return nil, errors.Wrap(err, "read response body")
	}

	parsed := decodeBody(raw)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		upErr := &UpstreamError{
			Status:     resp.StatusCode,
			Detail:     upstreamDetail(parsed),
			RetryAfter: retryAfterSeconds(resp.Header),
		}
		observability.RecordBridgeStatus(span, resp.StatusCode, upErr)
		return nil, upErr
	}

	observability.RecordBridgeStatus(span, resp.StatusCode, nil)
	return parsed, nil
}

// decodeBody parses the response body as JSON. Malformed JSON from the
// upstream service is not an error: the text is wrapped as {"raw": <text>}
// and passed through.
func decodeBody(raw []byte) any {
	if !jx.Valid(raw) {
		return map[string]any{"raw": string(raw)}
	}
	v, err := decodeValue(jx.DecodeBytes(raw))
	if err != nil {
		return map[string]any{"raw": string(raw)}
	}
	return v
}

// decodeValue reads one JSON value into the plain Go shapes encoding/json
// produces: map[string]any, []any, string, float64, bool, nil.
func decodeValue(d *jx.Decoder) (any, error) {
	switch d.Next() {
	case jx.Object:
		obj := make(map[string]any)
		err := d.Obj(func(d *jx.Decoder, key string) error {
			v, err := decodeValue(d)
			if err != nil {
				return err
			}
			obj[key] = v
			return nil
		})
		return obj, err
	case jx.Array:
		arr := make([]any, 0)
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeValue(d)
			if err != nil {
				return err
			}
			arr = append(arr, v)
			return nil
		})
		return arr, err
	case jx.String:
		return d.Str()
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return nil, err
		}
		return n.Float64()
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	default:
		return nil, errors.New("unexpected json token")
	}
}

// upstreamDetail extracts a human-readable detail from an error response:
// a string "error" field when present, else the whole parsed body serialized
// (no truncation, preserving the upstream behavior as-is).
func upstreamDetail(parsed any) string {
	if obj, ok := parsed.(map[string]any); ok {
		if s, ok := obj["error"].(string); ok && s != "" {
			return s
		}
	}
	b, err := json.Marshal(parsed)
	if err != nil {
		return "unreadable error body"
	}
	return string(b)
}

// retryAfterSeconds parses the retry-after response header. 0 means absent
// or unparseable.
func retryAfterSeconds(h http.Header) int {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}
