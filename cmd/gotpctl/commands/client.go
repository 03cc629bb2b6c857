package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// apiClient is a thin HTTP+JSON client for the gotpd admin API. It mirrors
// the wire types in internal/server without importing that package, since
// the two are meant to evolve independently (the server owns its own
// representation; the client only needs to agree on the JSON shape).
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: http.DefaultClient}
}

type sendRequest struct {
	Dest    int    `json:"dest"`
	PGN     int    `json:"pgn"`
	Payload string `json:"payload"`
}

type sendResponse struct {
	Peer int    `json:"peer"`
	Role string `json:"role"`
}

type sessionView struct {
	Role         string `json:"role"`
	Peer         int    `json:"peer"`
	PGN          uint32 `json:"pgn"`
	Size         int    `json:"size"`
	TotalPackets int    `json:"total_packets"`
	NextExpected int    `json:"next_expected"`
	State        string `json:"state"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// errAPIRequest wraps a non-2xx response from the daemon.
var errAPIRequest = errors.New("gotpd API request failed")

func (c *apiClient) ListSessions() ([]sessionView, error) {
	resp, err := c.http.Get(c.baseURL + "/v1/sessions")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var sessions []sessionView
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}
	return sessions, nil
}

func (c *apiClient) Send(dest, pgn int, payload string) (sendResponse, error) {
	body, err := json.Marshal(sendRequest{Dest: dest, PGN: pgn, Payload: payload})
	if err != nil {
		return sendResponse{}, fmt.Errorf("marshal send request: %w", err)
	}

	resp, err := c.http.Post(c.baseURL+"/v1/sessions", "application/json", bytes.NewReader(body))
	if err != nil {
		return sendResponse{}, fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return sendResponse{}, apiError(resp)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return sendResponse{}, fmt.Errorf("decode send response: %w", err)
	}
	return out, nil
}

func (c *apiClient) Cancel(peer int) error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/sessions/%d", c.baseURL, peer), nil)
	if err != nil {
		return fmt.Errorf("build cancel request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return fmt.Errorf("%w: status %d", errAPIRequest, resp.StatusCode)
	}
	return fmt.Errorf("%w: %s", errAPIRequest, body.Error)
}
