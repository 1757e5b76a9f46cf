// Package api is the HTTP client for the board backend: graph/node/edge
// persistence, asset storage, and artefact derivation.
//
// The backend is a collaborator, not part of this module. Authentication is
// an opaque bearer token; derivation endpoints stream newline-delimited
// events (see the stream package for the wire contract).
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	berrors "github.com/alex-tsiresy/lorebridge/pkg/board/errors"
	"github.com/alex-tsiresy/lorebridge/pkg/board/stream"
)

// Client talks to the board backend.
type Client struct {
	origin string
	token  string
	httpc  *http.Client
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpc = c }
}

// WithLogger sets the logger for request failures.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithTimeout sets the per-request timeout for non-streaming calls.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpc.Timeout = d }
}

// NewClient creates a backend client for the given origin and bearer token.
func NewClient(origin, token string, opts ...Option) *Client {
	c := &Client{
		origin: strings.TrimRight(origin, "/"),
		token:  token,
		httpc:  &http.Client{Timeout: 30 * time.Second},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Graph CRUD

// ListGraphs returns all boards visible to the caller.
func (c *Client) ListGraphs(ctx context.Context) ([]Graph, error) {
	var out []Graph
	err := c.doJSON(ctx, http.MethodGet, "/graphs", nil, &out)
	return out, err
}

// GetGraph fetches a single board.
func (c *Client) GetGraph(ctx context.Context, graphID string) (*Graph, error) {
	var out Graph
	if err := c.doJSON(ctx, http.MethodGet, "/graphs/"+url.PathEscape(graphID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGraph creates a new board.
func (c *Client) CreateGraph(ctx context.Context, title string) (*Graph, error) {
	var out Graph
	in := map[string]string{"title": title}
	if err := c.doJSON(ctx, http.MethodPost, "/graphs", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGraph updates board metadata.
func (c *Client) UpdateGraph(ctx context.Context, g *Graph) error {
	return c.doJSON(ctx, http.MethodPut, "/graphs/"+url.PathEscape(g.ID), g, nil)
}

// DuplicateGraph clones a board with all nodes and edges.
func (c *Client) DuplicateGraph(ctx context.Context, graphID string) (*Graph, error) {
	var out Graph
	if err := c.doJSON(ctx, http.MethodPost, "/graphs/"+url.PathEscape(graphID)+"/duplicate", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteGraph removes a board.
func (c *Client) DeleteGraph(ctx context.Context, graphID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/graphs/"+url.PathEscape(graphID), nil, nil)
}

// ToggleGraphFavorite flips a board's favorite flag.
func (c *Client) ToggleGraphFavorite(ctx context.Context, graphID string) error {
	return c.doJSON(ctx, http.MethodPost, "/graphs/"+url.PathEscape(graphID)+"/favorite", nil, nil)
}

// RecordGraphAccess marks a board as recently accessed.
func (c *Client) RecordGraphAccess(ctx context.Context, graphID string) error {
	return c.doJSON(ctx, http.MethodPost, "/graphs/"+url.PathEscape(graphID)+"/access", nil, nil)
}

// Node/edge CRUD

// ListNodes returns all persisted nodes of a board.
func (c *Client) ListNodes(ctx context.Context, graphID string) ([]NodeRecord, error) {
	var out []NodeRecord
	err := c.doJSON(ctx, http.MethodGet, "/graphs/"+url.PathEscape(graphID)+"/nodes", nil, &out)
	return out, err
}

// ListEdges returns all persisted edges of a board.
func (c *Client) ListEdges(ctx context.Context, graphID string) ([]EdgeRecord, error) {
	var out []EdgeRecord
	err := c.doJSON(ctx, http.MethodGet, "/graphs/"+url.PathEscape(graphID)+"/edges", nil, &out)
	return out, err
}

// CreateNode persists a node.
func (c *Client) CreateNode(ctx context.Context, rec *NodeRecord) error {
	return c.doJSON(ctx, http.MethodPost, "/graphs/"+url.PathEscape(rec.GraphID)+"/nodes", rec, nil)
}

// UpdateNode persists node position, size, title, or data changes.
func (c *Client) UpdateNode(ctx context.Context, rec *NodeRecord) error {
	return c.doJSON(ctx, http.MethodPut,
		"/graphs/"+url.PathEscape(rec.GraphID)+"/nodes/"+url.PathEscape(rec.ID), rec, nil)
}

// DeleteNode removes a persisted node.
func (c *Client) DeleteNode(ctx context.Context, graphID, nodeID string) error {
	return c.doJSON(ctx, http.MethodDelete,
		"/graphs/"+url.PathEscape(graphID)+"/nodes/"+url.PathEscape(nodeID), nil, nil)
}

// CreateEdge persists an edge.
func (c *Client) CreateEdge(ctx context.Context, rec *EdgeRecord) error {
	return c.doJSON(ctx, http.MethodPost, "/graphs/"+url.PathEscape(rec.GraphID)+"/edges", rec, nil)
}

// DeleteEdge removes a persisted edge.
func (c *Client) DeleteEdge(ctx context.Context, graphID, edgeID string) error {
	return c.doJSON(ctx, http.MethodDelete,
		"/graphs/"+url.PathEscape(graphID)+"/edges/"+url.PathEscape(edgeID), nil, nil)
}

// Assets

// GetAsset fetches asset metadata.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var out Asset
	if err := c.doJSON(ctx, http.MethodGet, "/assets/"+url.PathEscape(assetID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetAssetWithTranscript fetches an asset including its extracted transcript.
func (c *Client) GetAssetWithTranscript(ctx context.Context, assetID string) (*Asset, error) {
	var out Asset
	if err := c.doJSON(ctx, http.MethodGet,
		"/assets/"+url.PathEscape(assetID)+"?include=transcript", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAssetFromPlaceholder creates an asset record before its content is
// uploaded, so a node can reference it immediately.
func (c *Client) CreateAssetFromPlaceholder(ctx context.Context, kind string) (*Asset, error) {
	var out Asset
	in := map[string]string{"type": kind}
	if err := c.doJSON(ctx, http.MethodPost, "/assets/placeholder", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPDF uploads PDF bytes to an existing asset.
func (c *Client) UploadPDF(ctx context.Context, assetID string, pdf io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut,
		c.origin+"/assets/"+url.PathEscape(assetID)+"/pdf", pdf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/pdf")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return &berrors.StreamError{Message: "upload pdf", Err: err}
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, "/assets/{id}/pdf")
}

// UploadPDFFile uploads a PDF as a new asset in one multipart call and
// returns the created asset. UploadPDF is the two-step variant against a
// placeholder asset created earlier.
func (c *Client) UploadPDFFile(ctx context.Context, fileName string, pdf io.Reader) (*Asset, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, pdf); err != nil {
		return nil, fmt.Errorf("read pdf: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+"/assets/pdf", &buf)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, &berrors.StreamError{Message: "upload pdf file", Err: err}
	}
	defer resp.Body.Close()
	if err := c.checkStatus(resp, "/assets/pdf"); err != nil {
		return nil, err
	}

	var out Asset
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response from /assets/pdf: %w", err)
	}
	return &out, nil
}

// UpdateAssetURL points an asset at an external URL (website, video).
func (c *Client) UpdateAssetURL(ctx context.Context, assetID, rawURL string) error {
	in := map[string]string{"url": rawURL}
	return c.doJSON(ctx, http.MethodPut, "/assets/"+url.PathEscape(assetID)+"/url", in, nil)
}

// GetWebsiteContent fetches the extracted content of a website asset.
func (c *Client) GetWebsiteContent(ctx context.Context, assetID string) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	if err := c.doJSON(ctx, http.MethodGet,
		"/assets/"+url.PathEscape(assetID)+"/content", nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// Artefact derivation

// GetArtefact fetches persisted generated content by id. Used to
// short-circuit regeneration when content already exists.
func (c *Client) GetArtefact(ctx context.Context, artefactID string) (*Artefact, error) {
	var out Artefact
	if err := c.doJSON(ctx, http.MethodGet, "/artefacts/"+url.PathEscape(artefactID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProcessingOptions fetches generation variants for a chat session and
// output kind. artefactID may be empty for first-time generation.
func (c *Client) GetProcessingOptions(ctx context.Context, chatSessionID, outputKind, artefactID string) ([]ProcessingOption, error) {
	q := url.Values{}
	q.Set("chat_session_id", chatSessionID)
	q.Set("output_kind", outputKind)
	if artefactID != "" {
		q.Set("artefact_id", artefactID)
	}

	var out []ProcessingOption
	err := c.doJSON(ctx, http.MethodGet, "/artefacts/options?"+q.Encode(), nil, &out)
	return out, err
}

// StreamArtefact opens a generation stream for the given request and returns
// the chunk channel. The response body is closed when the channel drains or
// ctx is cancelled, so a timed-out attempt actively aborts its connection.
func (c *Client) StreamArtefact(ctx context.Context, req ArtefactRequest) (<-chan stream.Chunk, error) {
	path := "/artefacts/" + url.PathEscape(req.Kind) + "/stream"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode artefact request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.origin+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	// Ask intermediaries not to buffer the event stream.
	httpReq.Header.Set("Cache-Control", "no-cache")

	// Streaming requests must not inherit the client-wide timeout; the
	// derivation watchdog owns the deadline.
	streamClient := &http.Client{Transport: c.httpc.Transport}

	resp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, &berrors.StreamError{Message: "open stream", Err: err}
	}
	if err := c.checkStatus(resp, path); err != nil {
		resp.Body.Close()
		return nil, err
	}

	inner := stream.Events(ctx, resp.Body)
	out := make(chan stream.Chunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for chunk := range inner {
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// request plumbing

// doJSON performs a JSON request. in and out may be nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.origin+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return berrors.Transient(err, method+" "+path)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, path); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}

// checkStatus converts a non-2xx response into a typed error.
// Quota responses (HTTP 402, or 429 with a quota body) become QuotaError so
// they are never retried automatically.
func (c *Client) checkStatus(resp *http.Response, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	msg := readErrorBody(resp.Body)

	if resp.StatusCode == http.StatusPaymentRequired ||
		(resp.StatusCode == http.StatusTooManyRequests && strings.Contains(msg, "quota")) {
		c.logger.Warn("backend quota exceeded",
			slog.String("endpoint", path),
			slog.Int("status", resp.StatusCode))
		return &berrors.QuotaError{Resource: path}
	}

	c.logger.Warn("backend request failed",
		slog.String("endpoint", path),
		slog.Int("status", resp.StatusCode))

	return &berrors.HTTPError{
		StatusCode: resp.StatusCode,
		Endpoint:   path,
		Message:    msg,
	}
}

// readErrorBody extracts an error message from a failed response, tolerating
// both {"error": "..."} bodies and plain text.
func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return strings.TrimSpace(string(data))
}
