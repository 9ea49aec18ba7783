package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// HeaderProvider injects per-request headers, e.g. the auth token.
type HeaderProvider func() map[string]string

// Remote is a Store backed by the host platform's record API over HTTP, with
// a websocket change feed. List filtering and sorting run server-side through
// the encoded query; expand is resolved by the server as well.
type Remote struct {
	baseURL string
	http    *fasthttp.Client
	headers HeaderProvider

	defaultTimeout time.Duration
	retryMax       int

	feed *wsFeed
}

type RemoteOption func(*Remote)

func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.defaultTimeout = d }
}

func WithRetry(max int) RemoteOption {
	return func(r *Remote) { r.retryMax = max }
}

func WithHeaderProvider(h HeaderProvider) RemoteOption {
	return func(r *Remote) { r.headers = h }
}

func NewRemote(baseURL, wsURL, token string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	if token != "" {
		r.headers = func() map[string]string {
			return map[string]string{"Authorization": token}
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	r.feed = newWSFeed(wsURL, 10, 2*time.Second)
	r.feed.headerProvider = r.headers
	return r
}

// Connect establishes the change feed. CRUD calls work without it, but
// Subscribe callbacks only fire once connected.
func (r *Remote) Connect(ctx context.Context) error {
	return r.feed.connect(ctx)
}

func (r *Remote) Close(ctx context.Context) error {
	return r.feed.close(ctx)
}

func (r *Remote) Create(ctx context.Context, collection string, fields Fields) (Record, error) {
	var rec Record
	path := "/api/collections/" + url.PathEscape(collection) + "/records"
	if err := r.doJSON(ctx, fasthttp.MethodPost, path, fields, &rec, false); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Remote) Update(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	var rec Record
	path := recordPath(collection, id)
	if err := r.doJSON(ctx, fasthttp.MethodPatch, path, fields, &rec, false); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *Remote) GetOne(ctx context.Context, collection, id string, expand ...string) (Record, error) {
	var rec Record
	path := recordPath(collection, id)
	if len(expand) > 0 {
		path += "?expand=" + url.QueryEscape(strings.Join(expand, ","))
	}
	if err := r.doJSON(ctx, fasthttp.MethodGet, path, nil, &rec, true); err != nil {
		return nil, err
	}
	return rec, nil
}

type listResponse struct {
	Page       int      `json:"page"`
	TotalPages int      `json:"totalPages"`
	Items      []Record `json:"items"`
}

func (r *Remote) List(ctx context.Context, collection string, q Query) ([]Record, error) {
	params := url.Values{}
	params.Set("perPage", "500")
	if q.Filter != nil {
		if f := q.Filter.Encode(); f != "" {
			params.Set("filter", f)
		}
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if len(q.Expand) > 0 {
		params.Set("expand", strings.Join(q.Expand, ","))
	}

	var out []Record
	for page := 1; ; page++ {
		params.Set("page", strconv.Itoa(page))
		path := "/api/collections/" + url.PathEscape(collection) + "/records?" + params.Encode()

		var resp listResponse
		if err := r.doJSON(ctx, fasthttp.MethodGet, path, nil, &resp, true); err != nil {
			return nil, err
		}
		out = append(out, resp.Items...)
		if len(resp.Items) == 0 || page >= resp.TotalPages {
			break
		}
	}
	return out, nil
}

func (r *Remote) Delete(ctx context.Context, collection, id string) error {
	return r.doJSON(ctx, fasthttp.MethodDelete, recordPath(collection, id), nil, nil, false)
}

func (r *Remote) Subscribe(collection string, cb EventCallback) (func(), error) {
	return r.feed.subscribe(collection, cb), nil
}

func (r *Remote) UnsubscribeAll() {
	r.feed.unsubscribeAll()
}

func (r *Remote) ClientID() string {
	return r.feed.clientIDSnapshot()
}

func recordPath(collection, id string) string {
	return "/api/collections/" + url.PathEscape(collection) + "/records/" + url.PathEscape(id)
}

func (r *Remote) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(r.baseURL + path)
	req.Header.SetContentType("application/json")

	if r.headers != nil {
		for k, v := range r.headers() {
			if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
				req.Header.Set(k, v)
			}
		}
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry {
		attempts = r.retryMax
		if attempts <= 0 {
			attempts = 1
		}
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		deadline := r.computeDeadline(ctx)
		err := r.http.DoDeadline(req, resp, deadline)
		if err != nil {
			if attempt == attempts || !retry {
				return fmt.Errorf("request failed: %w", err)
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status == fasthttp.StatusNotFound {
			return ErrNotFound
		}
		if status < 200 || status >= 300 {
			body := string(resp.Body())
			err := fmt.Errorf("store api error: status=%d body=%s", status, truncate(body, 512))
			if attempt == attempts || !retry || !shouldRetryStatus(status) {
				return err
			}
			lastErr = err
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *Remote) computeDeadline(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		clientDL := time.Now().Add(r.defaultTimeout)
		if dl.Before(clientDL) {
			return dl
		}
		return clientDL
	}
	return time.Now().Add(r.defaultTimeout)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base // 100ms, 200ms ...
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
