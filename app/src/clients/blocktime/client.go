package blocktime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"head-monitor/app/src/clients"
	"head-monitor/app/src/domain"
)

const maxBody = 64

// Client fetches block timestamps from block-time APIs. One client serves every reference URL.
type Client struct {
	httpClient *http.Client
}

func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = clients.DefaultHTTPClient()
	}
	return &Client{httpClient: httpClient}
}

// BlockTime returns the timestamp in milliseconds reported by GET {baseURL}/block-time/{block}.
func (c *Client) BlockTime(ctx context.Context, baseURL string, block uint64) (int64, error) {
	url := fmt.Sprintf("%s/block-time/%d", domain.TrimURL(baseURL), block)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build block-time request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("block-time request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, domain.ErrBlockTimeNotFound
	}
	if !clients.IsSuccess(resp.StatusCode) {
		return 0, clients.NewStatusError(url, resp)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return 0, fmt.Errorf("read block-time body: %w", err)
	}
	if len(body) > maxBody {
		return 0, fmt.Errorf("block time from %s: body exceeds %d bytes", url, maxBody)
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse block time from %s: %w", url, err)
	}
	return ts, nil
}

var _ domain.ReferenceClient = (*Client)(nil)
