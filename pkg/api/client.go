package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/uhyunpark/meshbook/pkg/rpc"
)

// Client submits requests to a node's REST surface.
type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// Handle posts req to /api/v1/requests and decodes the reply.
func (c *Client) Handle(ctx context.Context, req rpc.Request) (rpc.Reply, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return rpc.Reply{}, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/requests", bytes.NewReader(body))
	if err != nil {
		return rpc.Reply{}, err
	}
	hreq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(hreq)
	if err != nil {
		return rpc.Reply{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return rpc.Reply{}, fmt.Errorf("node replied %d: %s: %s", resp.StatusCode, e.Error, e.Message)
	}
	var reply rpc.Reply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return rpc.Reply{}, fmt.Errorf("decode reply: %w", err)
	}
	return reply, nil
}
