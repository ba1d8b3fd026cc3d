// Package embedding converts text to dense vectors by calling an external
// embedding server. The server is a black box: text in, fixed-width float
// vector out. A TEI-style HTTP API is assumed (POST /embed), matching the
// multilingual 1024-dim model the default deployment runs.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/scrypster/recall/internal/breaker"
)

// ErrUnavailable indicates the embedding service could not produce a vector:
// network failure, timeout, non-2xx response, or an open circuit.
var ErrUnavailable = errors.New("embedding service unavailable")

// Embedder generates a dense vector for a text. Implementations must be safe
// for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// LateEmbedder additionally produces per-token (late interaction) vectors.
// Only the HTTP client implements it; the reindex command type-asserts.
type LateEmbedder interface {
	EmbedTokens(ctx context.Context, text string) ([][]float32, error)
}

// Config holds HTTP client settings.
type Config struct {
	// BaseURL of the embedding server.
	BaseURL string

	// Dimension the server's model emits. Responses with a different width
	// are rejected rather than silently upserted into the collection.
	Dimension int

	// Timeout bounds each request.
	Timeout time.Duration
}

// Client calls the embedding server over HTTP. All calls run through a
// circuit breaker so a dead server fails fast during bulk operations.
type Client struct {
	http    *resty.Client
	dim     int
	breaker *breaker.Breaker
}

// NewClient creates an embedding client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1024
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetTimeout(cfg.Timeout),
		dim:     cfg.Dimension,
		breaker: breaker.New("embeddings"),
	}
}

// Dimension returns the configured vector width.
func (c *Client) Dimension() int { return c.dim }

type embedRequest struct {
	Inputs string `json:"inputs"`
}

// Embed returns the dense vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.embed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	var vectors [][]float32
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Inputs: text}).
		SetResult(&vectors).
		Post("/embed")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode(), resp.String())
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty vector in response", ErrUnavailable)
	}
	if len(vectors[0]) != c.dim {
		return nil, fmt.Errorf("%w: got %d-dim vector, collection expects %d", ErrUnavailable, len(vectors[0]), c.dim)
	}
	return vectors[0], nil
}

// EmbedTokens returns per-token vectors via the server's /embed_all endpoint.
// Used only by the ColBERT reindex path; dimension is not checked because
// late-interaction vectors have their own width.
func (c *Client) EmbedTokens(ctx context.Context, text string) ([][]float32, error) {
	result, err := c.breaker.Execute(ctx, func() (any, error) {
		return c.embedTokens(ctx, text)
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, err
	}
	return result.([][]float32), nil
}

func (c *Client) embedTokens(ctx context.Context, text string) ([][]float32, error) {
	// /embed_all returns one vector per input token: [[[f32...]...]]
	var tokens [][][]float32
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(embedRequest{Inputs: text}).
		SetResult(&tokens).
		Post("/embed_all")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode(), resp.String())
	}
	if len(tokens) == 0 || len(tokens[0]) == 0 {
		return nil, fmt.Errorf("%w: empty token vectors in response", ErrUnavailable)
	}
	return tokens[0], nil
}
