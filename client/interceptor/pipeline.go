// Package interceptor implements the request/response middleware pipeline
// wrapping the OAuth client's HTTP calls.
package interceptor

import (
	"fmt"
	"net/http"
	"time"
)

// defaultRequestTimeout bounds individual HTTP calls when the caller does not
// supply its own client.
const defaultRequestTimeout = 10 * time.Second

// RequestInterceptor may transform or reject an outgoing request.
type RequestInterceptor interface {
	InterceptRequest(req *http.Request) (*http.Request, error)
}

// ResponseInterceptor may transform or reject an incoming response.
type ResponseInterceptor interface {
	InterceptResponse(resp *http.Response) (*http.Response, error)
}

// RequestFunc adapts a function to RequestInterceptor.
type RequestFunc func(req *http.Request) (*http.Request, error)

func (f RequestFunc) InterceptRequest(req *http.Request) (*http.Request, error) {
	return f(req)
}

// ResponseFunc adapts a function to ResponseInterceptor.
type ResponseFunc func(resp *http.Response) (*http.Response, error)

func (f ResponseFunc) InterceptResponse(resp *http.Response) (*http.Response, error) {
	return f(resp)
}

// Pipeline runs ordered request and response interceptors around an HTTP
// client, with optional retry. A pipeline is a plain value owned by one OAuth
// client instance; there is no global registry.
type Pipeline struct {
	httpClient *http.Client
	requests   []RequestInterceptor
	responses  []ResponseInterceptor
	retry      *RetryPolicy
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRequestInterceptor appends a request interceptor.
func WithRequestInterceptor(ri RequestInterceptor) Option {
	return func(p *Pipeline) { p.requests = append(p.requests, ri) }
}

// WithResponseInterceptor appends a response interceptor.
func WithResponseInterceptor(ri ResponseInterceptor) Option {
	return func(p *Pipeline) { p.responses = append(p.responses, ri) }
}

// WithRetry enables retrying per the given policy.
func WithRetry(policy *RetryPolicy) Option {
	return func(p *Pipeline) { p.retry = policy }
}

// New creates a pipeline over the given HTTP client. A nil client gets a
// default with a per-request timeout.
func New(httpClient *http.Client, opts ...Option) *Pipeline {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	p := &Pipeline{httpClient: httpClient}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do executes the request through the pipeline: request interceptors in
// order, the HTTP call (with retries when configured), then response
// interceptors in order. The retry attempt counter is scoped to this one
// logical request, so retries terminate deterministically.
func (p *Pipeline) Do(req *http.Request) (*http.Response, error) {
	var err error
	for _, ri := range p.requests {
		req, err = ri.InterceptRequest(req)
		if err != nil {
			return nil, fmt.Errorf("request interceptor rejected request: %w", err)
		}
	}

	resp, err := p.execute(req)
	if err != nil {
		return nil, err
	}

	for _, ri := range p.responses {
		resp, err = ri.InterceptResponse(resp)
		if err != nil {
			return nil, fmt.Errorf("response interceptor rejected response: %w", err)
		}
	}

	return resp, nil
}

func (p *Pipeline) execute(req *http.Request) (*http.Response, error) {
	if p.retry == nil {
		return p.httpClient.Do(req)
	}
	return p.retry.do(p.httpClient, req)
}
