// Package httpstore is a remote.Backend that talks JSON over HTTP to a
// `crewclock serve` instance.
package httpstore

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

	"github.com/balkashynov/crewclock/internal/remote"
)

// Store sends every backend call to a record server
type Store struct {
	baseURL string
	client  *http.Client
}

var _ remote.Backend = (*Store)(nil)

// New returns a store for the server at baseURL. timeout bounds each
// request; zero means no limit beyond the caller's context.
func New(baseURL string, timeout time.Duration) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *Store) FetchZone(ctx context.Context, zone string) error {
	return s.do(ctx, http.MethodGet, zonePath(zone), nil, nil)
}

func (s *Store) CreateZone(ctx context.Context, zone string) error {
	return s.do(ctx, http.MethodPut, zonePath(zone), nil, nil)
}

func (s *Store) DeleteZone(ctx context.Context, zone string) error {
	return s.do(ctx, http.MethodDelete, zonePath(zone), nil, nil)
}

func (s *Store) Lookup(ctx context.Context, zone string, ids []string) ([]remote.Record, error) {
	var out RecordsResponse
	if err := s.do(ctx, http.MethodPost, zonePath(zone)+"/lookup", LookupRequest{IDs: ids}, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

func (s *Store) Modify(ctx context.Context, zone string, req remote.ModifyRequest) (remote.ModifyResult, error) {
	var out remote.ModifyResult
	err := s.do(ctx, http.MethodPost, zonePath(zone)+"/modify", req, &out)
	var partial *partialResponse
	if errors.As(err, &partial) {
		return partial.result, partial.err
	}
	if err != nil {
		return remote.ModifyResult{}, err
	}
	return out, nil
}

func (s *Store) Query(ctx context.Context, zone string, q remote.Query) ([]remote.Record, error) {
	var out RecordsResponse
	if err := s.do(ctx, http.MethodPost, zonePath(zone)+"/query", q, &out); err != nil {
		return nil, err
	}
	return out.Records, nil
}

// Health calls GET /health
func (s *Store) Health(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/health", nil, nil)
}

// partialResponse carries a 207 body out of do
type partialResponse struct {
	result remote.ModifyResult
	err    error
}

func (p *partialResponse) Error() string { return p.err.Error() }

func zonePath(zone string) string {
	return "/zones/" + url.PathEscape(zone)
}

func (s *Store) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, remote.ErrEncoding)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, remote.ErrNetworkUnavailable)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %v: %w", method, path, err, remote.ErrNetworkUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusMultiStatus:
		var eb ErrorBody
		if err := json.Unmarshal(data, &eb); err != nil {
			return fmt.Errorf("decode partial response: %w", remote.ErrEncoding)
		}
		p := &partialResponse{err: DecodeError(eb)}
		if eb.Result != nil {
			p.result = *eb.Result
		}
		return p
	case resp.StatusCode >= 300:
		var eb ErrorBody
		if err := json.Unmarshal(data, &eb); err != nil || eb.Code == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return DecodeError(eb)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, remote.ErrEncoding)
	}
	return nil
}
