// Package layout proxies documents to a remote layout-understanding
// service and relays the structured Markdown it returns. The remote
// endpoint speaks a Triton-style JSON envelope; this client only forwards
// bytes or URLs and unwraps the response, it implements no layout logic
// of its own.
package layout

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// File type values understood by the remote service.
const (
	FileTypePDF   = 0
	FileTypeImage = 1
)

// ErrNotConfigured indicates no remote API URL was provided.
var ErrNotConfigured = errors.New("layout parsing API URL not configured")

// APIError carries an error reported by the remote service itself.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("layout parsing API error [%d]: %s", e.Code, e.Message)
}

// Request describes one layout-parsing invocation. File is either a URL
// the service (or this proxy) can fetch, or already base64-encoded
// content.
type Request struct {
	File                string
	FileType            *int // nil = infer from URL extension
	Visualize           bool
	PrettifyMarkdown    bool
	UseLayoutDetection  *bool
	UseChartRecognition *bool
	MergeLayoutBlocks   *bool
}

// MarkdownResult is the per-page Markdown returned by the service.
type MarkdownResult struct {
	Text    string `json:"text"`
	IsStart bool   `json:"is_start"`
	IsEnd   bool   `json:"is_end"`
}

// ParseResult is the unwrapped service response.
type ParseResult struct {
	LogID           string           `json:"log_id"`
	MarkdownResults []MarkdownResult `json:"markdown_results"`
	DataInfo        map[string]any   `json:"data_info"`
}

// LocalResolver lets the owner short-circuit URL downloads that point at
// locally stored artifacts, returning their bytes directly.
type LocalResolver func(url string) ([]byte, bool)

// Client calls the remote layout-parsing endpoint.
type Client struct {
	apiURL     string
	httpClient *http.Client
	resolve    LocalResolver
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLocalResolver installs a resolver for locally-served file URLs.
func WithLocalResolver(r LocalResolver) Option {
	return func(c *Client) { c.resolve = r }
}

// NewClient creates a layout-parsing client against the given API URL.
func NewClient(apiURL string, opts ...Option) *Client {
	c := &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Triton-style envelope types.
type tritonTensor struct {
	Name     string   `json:"name"`
	Shape    []int    `json:"shape,omitempty"`
	Datatype string   `json:"datatype,omitempty"`
	Data     []string `json:"data,omitempty"`
}

type tritonRequest struct {
	Inputs  []tritonTensor `json:"inputs"`
	Outputs []tritonTensor `json:"outputs"`
}

type tritonResponse struct {
	Outputs []struct {
		Data []string `json:"data"`
	} `json:"outputs"`
}

type innerRequest struct {
	File                string `json:"file"`
	FileType            *int   `json:"fileType,omitempty"`
	Visualize           bool   `json:"visualize"`
	PrettifyMarkdown    bool   `json:"prettifyMarkdown"`
	UseLayoutDetection  *bool  `json:"useLayoutDetection,omitempty"`
	UseChartRecognition *bool  `json:"useChartRecognition,omitempty"`
	MergeLayoutBlocks   *bool  `json:"mergeLayoutBlocks,omitempty"`
}

type innerResponse struct {
	ErrorCode int    `json:"errorCode"`
	ErrorMsg  string `json:"errorMsg"`
	LogID     string `json:"logId"`
	Result    struct {
		DataInfo             map[string]any `json:"dataInfo"`
		LayoutParsingResults []struct {
			Markdown struct {
				Text    string `json:"text"`
				IsStart *bool  `json:"isStart"`
				IsEnd   *bool  `json:"isEnd"`
			} `json:"markdown"`
		} `json:"layoutParsingResults"`
	} `json:"result"`
}

// Parse forwards the request to the remote endpoint and unwraps its
// per-page Markdown results.
func (c *Client) Parse(ctx context.Context, req Request) (*ParseResult, error) {
	if c.apiURL == "" {
		return nil, ErrNotConfigured
	}

	fileB64, fileType, err := c.resolveFile(ctx, req)
	if err != nil {
		return nil, err
	}

	inner := innerRequest{
		File:                fileB64,
		FileType:            fileType,
		Visualize:           req.Visualize,
		PrettifyMarkdown:    req.PrettifyMarkdown,
		UseLayoutDetection:  req.UseLayoutDetection,
		UseChartRecognition: req.UseChartRecognition,
		MergeLayoutBlocks:   req.MergeLayoutBlocks,
	}
	innerJSON, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	envelope := tritonRequest{
		Inputs: []tritonTensor{{
			Name:     "input",
			Shape:    []int{1, 1},
			Datatype: "BYTES",
			Data:     []string{string(innerJSON)},
		}},
		Outputs: []tritonTensor{{Name: "output"}},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call layout parsing API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("layout parsing API returned status %d: %s", resp.StatusCode, snippet)
	}

	return decodeResponse(resp.Body)
}

func decodeResponse(r io.Reader) (*ParseResult, error) {
	var envelope tritonResponse
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if len(envelope.Outputs) == 0 || len(envelope.Outputs[0].Data) == 0 {
		return nil, errors.New("response envelope has no output data")
	}

	var inner innerResponse
	if err := json.Unmarshal([]byte(envelope.Outputs[0].Data[0]), &inner); err != nil {
		return nil, fmt.Errorf("decode inner response: %w", err)
	}
	if inner.ErrorCode != 0 {
		return nil, &APIError{Code: inner.ErrorCode, Message: inner.ErrorMsg}
	}

	result := &ParseResult{
		LogID:           inner.LogID,
		MarkdownResults: make([]MarkdownResult, 0, len(inner.Result.LayoutParsingResults)),
		DataInfo:        inner.Result.DataInfo,
	}
	for _, res := range inner.Result.LayoutParsingResults {
		md := MarkdownResult{Text: res.Markdown.Text, IsStart: true, IsEnd: true}
		if res.Markdown.IsStart != nil {
			md.IsStart = *res.Markdown.IsStart
		}
		if res.Markdown.IsEnd != nil {
			md.IsEnd = *res.Markdown.IsEnd
		}
		result.MarkdownResults = append(result.MarkdownResults, md)
	}
	return result, nil
}

// resolveFile turns the request's File into base64 content plus a file
// type. URLs are downloaded (or read locally when the resolver claims
// them); anything else is treated as already-encoded content.
func (c *Client) resolveFile(ctx context.Context, req Request) (string, *int, error) {
	fileType := req.FileType

	if !isURL(req.File) {
		return req.File, fileType, nil
	}

	if fileType == nil {
		t := FileTypeImage
		if strings.HasSuffix(strings.ToLower(req.File), ".pdf") {
			t = FileTypePDF
		}
		fileType = &t
	}

	if c.resolve != nil {
		if data, ok := c.resolve(req.File); ok {
			return base64.StdEncoding.EncodeToString(data), fileType, nil
		}
	}

	data, err := c.download(ctx, req.File)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(data), fileType, nil
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func isURL(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// FullMarkdown joins the per-page Markdown texts with blank lines,
// skipping empty pages.
func FullMarkdown(results []MarkdownResult) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}
