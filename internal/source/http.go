// Package source implements core.PagedSource over HTTP JSON APIs.
//
// One HTTPSource serves one job: the job's core.SourceSpec says which
// endpoint to call, how it pages and where the records sit in the response.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Options configures the HTTP client shared by all jobs.
type Options struct {
	BaseURL    string
	Token      string
	AuthHeader string // header carrying Token, default "Authorization"
	UserAgent  string
	Timeout    time.Duration
	Client     *http.Client // overrides Timeout when set
}

// HTTPSource fetches pages of one job's endpoint.
type HTTPSource struct {
	baseURL    string
	token      string
	authHeader string
	userAgent  string
	client     *http.Client
	spec       core.SourceSpec
}

// New returns a source for spec.
func New(spec core.SourceSpec, opts Options) (*HTTPSource, error) {
	base := strings.TrimSpace(opts.BaseURL)
	if base == "" {
		return nil, errors.New("source base URL is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid source base URL: %w", err)
	}
	switch spec.Pagination {
	case "", core.PaginateNone, core.PaginateOffset, core.PaginateCursor:
	default:
		return nil, fmt.Errorf("unknown pagination %q", spec.Pagination)
	}
	if spec.Pagination == core.PaginateCursor && spec.CursorPath == "" {
		return nil, errors.New("cursor pagination needs cursor_path")
	}
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	spec.Method = strings.ToUpper(spec.Method)
	if spec.LimitParam == "" {
		spec.LimitParam = "limit"
	}
	if spec.OffsetParam == "" {
		spec.OffsetParam = "offset"
	}
	if spec.CursorParam == "" {
		spec.CursorParam = "cursor"
	}

	client := opts.Client
	if client == nil {
		to := opts.Timeout
		if to <= 0 {
			to = 60 * time.Second
		}
		client = &http.Client{Timeout: to}
	}
	authHeader := opts.AuthHeader
	if authHeader == "" {
		authHeader = "Authorization"
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = "sheetsync/1.0"
	}

	return &HTTPSource{
		baseURL:    strings.TrimRight(base, "/"),
		token:      opts.Token,
		authHeader: authHeader,
		userAgent:  ua,
		client:     client,
		spec:       spec,
	}, nil
}

// FetchPage implements core.PagedSource.
//
// Status 429 is returned as *core.RateLimitError, 503 and transport
// failures as *core.TransientNetworkError. Any other non-2xx status is a
// plain error.
func (s *HTTPSource) FetchPage(ctx context.Context, cursor core.Cursor) (core.Page, error) {
	req, err := s.newRequest(ctx, cursor)
	if err != nil {
		return core.Page{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.Page{}, ctx.Err()
		}
		return core.Page{}, &core.TransientNetworkError{Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.Page{}, &core.TransientNetworkError{StatusCode: resp.StatusCode, Err: err}
	}

	switch status := resp.StatusCode; {
	case status == http.StatusTooManyRequests:
		return core.Page{}, &core.RateLimitError{
			RetryAfter: retryAfter(resp.Header.Get("Retry-After")),
			Err:        fmt.Errorf("http status %d", status),
		}
	case status == http.StatusServiceUnavailable:
		return core.Page{}, &core.TransientNetworkError{StatusCode: status, Err: fmt.Errorf("http status %d", status)}
	case status < 200 || status >= 300:
		return core.Page{}, fmt.Errorf("source returned status %d: %s", status, snippet(body))
	}

	return s.parsePage(body, cursor)
}

func (s *HTTPSource) newRequest(ctx context.Context, cursor core.Cursor) (*http.Request, error) {
	u, err := url.Parse(s.baseURL + "/" + strings.TrimLeft(s.spec.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("build source URL: %w", err)
	}
	q := u.Query()
	for k, v := range s.spec.Query {
		q.Set(k, v)
	}

	var body map[string]any
	if s.spec.Method != http.MethodGet {
		body = deepCopy(s.spec.Body)
		if body == nil {
			body = map[string]any{}
		}
	}
	set := func(param string, v any) {
		if body != nil {
			setPath(body, param, v)
			return
		}
		q.Set(param, fmt.Sprint(v))
	}

	switch s.spec.Pagination {
	case core.PaginateOffset:
		offset := 0
		if cursor != "" {
			if offset, err = strconv.Atoi(string(cursor)); err != nil {
				return nil, fmt.Errorf("invalid offset cursor %q", cursor)
			}
		}
		if s.spec.PageSize > 0 {
			set(s.spec.LimitParam, s.spec.PageSize)
		}
		set(s.spec.OffsetParam, offset)
	case core.PaginateCursor:
		if s.spec.PageSize > 0 {
			set(s.spec.LimitParam, s.spec.PageSize)
		}
		if cursor != "" {
			set(s.spec.CursorParam, decodeCursor(cursor))
		}
	}
	u.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, s.spec.Method, u.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set(s.authHeader, s.token)
	}
	return req, nil
}

func (s *HTTPSource) parsePage(body []byte, cursor core.Cursor) (core.Page, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.Page{}, fmt.Errorf("source payload parse: %w", err)
	}

	raw := payload
	if s.spec.RecordsPath != "" {
		var ok bool
		if raw, ok = lookupPath(payload, s.spec.RecordsPath); !ok {
			// an absent list means an empty page
			raw = nil
		}
	}
	var items []any
	switch v := raw.(type) {
	case nil:
	case []any:
		items = v
	default:
		return core.Page{}, fmt.Errorf("source payload: %q is not a list", s.spec.RecordsPath)
	}

	page := core.Page{Records: make([]core.Record, 0, len(items))}
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return core.Page{}, fmt.Errorf("source payload: record %d is not an object", i)
		}
		page.Records = append(page.Records, core.Record(obj))
	}

	full := s.spec.PageSize <= 0 || len(items) >= s.spec.PageSize
	switch s.spec.Pagination {
	case core.PaginateOffset:
		if len(items) > 0 && full {
			offset, _ := strconv.Atoi(string(cursor))
			next := core.Cursor(strconv.Itoa(offset + len(items)))
			page.Next = &next
		}
	case core.PaginateCursor:
		if v, ok := lookupPath(payload, s.spec.CursorPath); ok && v != nil && full {
			next, err := encodeCursor(v)
			if err != nil {
				return core.Page{}, err
			}
			page.Next = &next
		}
	}
	return page, nil
}

// encodeCursor turns a cursor value from a response into an opaque Cursor.
// Objects are kept as JSON so they can be sent back verbatim.
func encodeCursor(v any) (core.Cursor, error) {
	switch c := v.(type) {
	case string:
		return core.Cursor(c), nil
	case map[string]any:
		raw, err := json.Marshal(c)
		if err != nil {
			return "", fmt.Errorf("encode cursor: %w", err)
		}
		return core.Cursor(raw), nil
	default:
		return core.Cursor(core.CellString(c)), nil
	}
}

func decodeCursor(c core.Cursor) any {
	if strings.HasPrefix(string(c), "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(c), &obj); err == nil {
			return obj
		}
	}
	return string(c)
}

// lookupPath walks a dotted path through nested objects.
func lookupPath(v any, path string) (any, bool) {
	for _, part := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if v, ok = obj[part]; !ok {
			return nil, false
		}
	}
	return v, true
}

// setPath stores v at a dotted path, creating intermediate objects. An
// object value is merged into an existing object.
func setPath(m map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	last := parts[len(parts)-1]
	if obj, ok := v.(map[string]any); ok {
		if existing, ok := m[last].(map[string]any); ok {
			for k, val := range obj {
				existing[k] = val
			}
			return
		}
	}
	m[last] = v
}

func deepCopy(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			out[k] = deepCopy(child)
			continue
		}
		out[k] = v
	}
	return out
}

func retryAfter(h string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
