// Package http provides an edzip.ByteSource backed by HTTP range requests,
// letting entries be extracted from remote archives without downloading them.
package http

import (
	"bytes"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/edzip/edzip"
)

// Source implements random access reads via HTTP range requests.
// It satisfies edzip.ByteSource.
//
// The remote object's ETag and Last-Modified values are captured when the
// source is created and pinned on every subsequent request, so an archive
// replaced mid-session fails loudly instead of serving bytes from a
// different object than the index describes.
type Source struct {
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	size         int64
	etag         string
	lastModified string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// NewSource creates a Source backed by HTTP range requests.
// It probes the remote to determine the content size and to confirm that
// range requests are honored.
func NewSource(url string, opts ...Option) (*Source, error) {
	s := &Source{
		url:    url,
		client: nethttp.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}

	if err := s.probe(); err != nil {
		return nil, err
	}
	return s, nil
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID returns the source URL.
func (s *Source) SourceID() string {
	return s.url
}

// ReadRange returns a streaming reader for the specified byte range.
func (s *Source) ReadRange(off, length int64) (io.ReadCloser, error) {
	if length < 0 {
		return nil, fmt.Errorf("read range length %d: negative length", length)
	}
	if off < 0 {
		return nil, fmt.Errorf("read range %d: negative offset", off)
	}
	if length == 0 {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	if off >= s.size {
		return io.NopCloser(bytes.NewReader(nil)), io.EOF
	}
	if length > s.size-off {
		length = s.size - off
	}

	resp, err := s.doRange(off, off+length-1)
	if err != nil {
		return nil, err
	}
	return &rangeReadCloser{
		body:   resp.Body,
		reader: io.LimitReader(resp.Body, length),
	}, nil
}

// ReadAt reads data from the remote at the given offset using one HTTP
// range request. Network and server failures wrap edzip.ErrSourceUnavailable.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	expected := len(p)
	if end >= s.size {
		end = s.size - 1
		expected = int(end - off + 1)
	}

	resp, err := s.doRange(off, end)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	n, err := io.ReadFull(resp.Body, p[:expected])
	if err != nil {
		return n, fmt.Errorf("%w: short range response from %s: %v", edzip.ErrSourceUnavailable, s.url, err)
	}
	if expected < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// doRange issues one ranged GET and validates the response status.
func (s *Source) doRange(off, end int64) (*nethttp.Response, error) {
	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", edzip.ErrSourceUnavailable, err)
	}

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		return resp, nil
	case nethttp.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s does not support range requests", edzip.ErrSourceUnavailable, s.url)
	case nethttp.StatusPreconditionFailed:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s changed since the source was opened", edzip.ErrSourceUnavailable, s.url)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: range request to %s failed: %s", edzip.ErrSourceUnavailable, s.url, resp.Status)
	}
}

// probe determines the remote size and captures validators. A HEAD request
// supplies metadata when the server offers it; the authoritative size comes
// from a one-byte range request, which also proves range support.
func (s *Source) probe() error {
	size := int64(-1)
	if req, err := s.newRequest(nethttp.MethodHead); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			size = resp.ContentLength
			s.etag = resp.Header.Get("ETag")
			s.lastModified = resp.Header.Get("Last-Modified")
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	req, err := s.newRequest(nethttp.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", edzip.ErrSourceUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != nethttp.StatusPartialContent {
		if resp.StatusCode == nethttp.StatusOK {
			return fmt.Errorf("%w: %s does not support range requests", edzip.ErrSourceUnavailable, s.url)
		}
		return fmt.Errorf("%w: range probe of %s failed: %s", edzip.ErrSourceUnavailable, s.url, resp.Status)
	}

	rangeSize, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", edzip.ErrSourceUnavailable, s.url, err)
	}
	if size > 0 && size != rangeSize {
		return fmt.Errorf("%w: %s reports inconsistent sizes (head %d, range %d)", edzip.ErrSourceUnavailable, s.url, size, rangeSize)
	}

	if s.etag == "" {
		s.etag = resp.Header.Get("ETag")
	}
	if s.lastModified == "" {
		s.lastModified = resp.Header.Get("Last-Modified")
	}
	s.size = rangeSize
	return nil
}

func (s *Source) newRequest(method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequest(method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if method == nethttp.MethodGet {
		if s.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return req, nil
}

type rangeReadCloser struct {
	body   io.ReadCloser
	reader io.Reader
}

func (r *rangeReadCloser) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *rangeReadCloser) Close() error {
	_, _ = io.Copy(io.Discard, r.body)
	return r.body.Close()
}

func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "bytes "), "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
