package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"head-monitor/app/src/clients"
	"head-monitor/app/src/domain"
)

type streamQuery struct {
	FromBlock uint64      `json:"fromBlock"`
	Type      string      `json:"type"`
	Fields    queryFields `json:"fields"`
}

type queryFields struct {
	Block blockFields `json:"block"`
}

type blockFields struct {
	Number bool `json:"number"`
}

type headResponse struct {
	Number *uint64 `json:"number"`
}

type streamLine struct {
	Header *struct {
		Number *uint64 `json:"number"`
	} `json:"header"`
}

// Client talks to one portal dataset endpoint.
type Client struct {
	baseURL    string
	wireType   string
	httpClient *http.Client
}

func NewClient(target domain.Target, httpClient *http.Client) (*Client, error) {
	kind := target.Kind
	if kind == "" {
		kind = domain.DefaultDatasetKind
	}
	wireType, err := kind.WireType()
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = clients.DefaultHTTPClient()
	}
	return &Client{
		baseURL:    domain.TrimURL(target.URL),
		wireType:   wireType,
		httpClient: httpClient,
	}, nil
}

func (c *Client) URL() string {
	return c.baseURL
}

// Head returns the number reported by GET /head.
func (c *Client) Head(ctx context.Context) (uint64, error) {
	url := c.baseURL + "/head"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build head request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("head request: %w", err)
	}
	defer resp.Body.Close()

	if !clients.IsSuccess(resp.StatusCode) {
		return 0, clients.NewStatusError(url, resp)
	}

	var head headResponse
	if err := json.NewDecoder(resp.Body).Decode(&head); err != nil {
		return 0, fmt.Errorf("%w: decode head: %v", domain.ErrInvalidBlock, err)
	}
	if head.Number == nil {
		return 0, fmt.Errorf("%w: head response has no number", domain.ErrInvalidBlock)
	}
	return *head.Number, nil
}

// Stream posts a query starting at fromBlock and returns the block number on the last NDJSON line.
// A 204 answer yields ErrNoNewData.
func (c *Client) Stream(ctx context.Context, fromBlock uint64) (uint64, error) {
	url := c.baseURL + "/stream"
	payload, err := json.Marshal(streamQuery{
		FromBlock: fromBlock,
		Type:      c.wireType,
		Fields:    queryFields{Block: blockFields{Number: true}},
	})
	if err != nil {
		return 0, fmt.Errorf("encode stream query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("stream request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return 0, domain.ErrNoNewData
	}
	if !clients.IsSuccess(resp.StatusCode) {
		return 0, clients.NewStatusError(url, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read stream body: %w", err)
	}
	return lastBlockNumber(body)
}

func lastBlockNumber(body []byte) (uint64, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return 0, fmt.Errorf("%w: empty stream body", domain.ErrInvalidBlock)
	}

	line := body
	if idx := bytes.LastIndexByte(body, '\n'); idx >= 0 {
		line = bytes.TrimSpace(body[idx+1:])
	}

	var parsed streamLine
	if err := json.Unmarshal(line, &parsed); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidBlock, snippet(line), err)
	}
	if parsed.Header == nil || parsed.Header.Number == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrInvalidBlock, snippet(line))
	}
	return *parsed.Header.Number, nil
}

func snippet(line []byte) string {
	const limit = 200
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}

var _ domain.TargetClient = (*Client)(nil)
