package peerdiscovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	announceTimeout  = 5 * time.Second
	fetchTimeout     = 5 * time.Second
	deregisterTimeout = 2 * time.Second
)

// announceRequest is the body of POST {endpoint}/api/v1/peers/announce.
type announceRequest struct {
	NodeID       string   `json:"nodeId"`
	BTPEndpoint  string   `json:"btpEndpoint"`
	ILPAddress   string   `json:"ilpAddress"`
	Capabilities []string `json:"capabilities"`
	Version      string   `json:"version"`
}

type announceResponse struct {
	Success bool   `json:"success"`
	TTL     *int   `json:"ttl,omitempty"`
	Error   string `json:"error,omitempty"`
}

type fetchPeersResponse struct {
	Peers []struct {
		NodeID       string   `json:"nodeId"`
		BTPEndpoint  string   `json:"btpEndpoint"`
		ILPAddress   string   `json:"ilpAddress"`
		Capabilities []string `json:"capabilities"`
		Version      string   `json:"version"`
		LastSeen     int64    `json:"lastSeen"`
	} `json:"peers"`
}

// endpointClient speaks the discovery HTTP API (spec.md §6) against one
// configured endpoint.
type endpointClient struct {
	base       string
	httpClient *http.Client
}

func newEndpointClient(base string) *endpointClient {
	return &endpointClient{base: base, httpClient: &http.Client{}}
}

func (c *endpointClient) announce(ctx context.Context, self announceRequest) (announceResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, announceTimeout)
	defer cancel()

	body, err := json.Marshal(self)
	if err != nil {
		return announceResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/v1/peers/announce", bytes.NewReader(body))
	if err != nil {
		return announceResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return announceResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return announceResponse{}, fmt.Errorf("announce to %s: unexpected status %d", c.base, resp.StatusCode)
	}

	var out announceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return announceResponse{}, err
	}
	return out, nil
}

func (c *endpointClient) fetch(ctx context.Context) ([]DiscoveredPeer, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/peers", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch from %s: unexpected status %d", c.base, resp.StatusCode)
	}

	var out fetchPeersResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}

	peers := make([]DiscoveredPeer, 0, len(out.Peers))
	for _, p := range out.Peers {
		peers = append(peers, DiscoveredPeer{
			NodeID:       p.NodeID,
			BTPEndpoint:  p.BTPEndpoint,
			ILPAddress:   p.ILPAddress,
			Capabilities: p.Capabilities,
			Version:      p.Version,
			LastSeen:     p.LastSeen,
		})
	}
	return peers, nil
}

func (c *endpointClient) deregister(ctx context.Context, nodeID string) error {
	ctx, cancel := context.WithTimeout(ctx, deregisterTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.base+"/api/v1/peers/"+url.PathEscape(nodeID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("deregister from %s: unexpected status %d", c.base, resp.StatusCode)
	}
	return nil
}
