package result

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jpillora/backoff"
)

// Client talks to the external signing service and the contract relay. One
// instance is shared by every session; the embedded http.Client is safe for
// concurrent use.
type Client struct {
	httpClient *http.Client
	signerURL  string
	relayURL   string
	retries    int
	logger     *log.Logger
}

// NewClient builds a client with a bounded per-attempt timeout.
func NewClient(signerURL, relayURL string, timeout time.Duration, retries int, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		signerURL:  signerURL,
		relayURL:   relayURL,
		retries:    retries,
		logger:     logger.WithPrefix("signer"),
	}
}

type signRequest struct {
	Payload string `json:"payload"`
}

type signResponse struct {
	Signed string `json:"signed"`
}

// Sign posts the canonical payload to the signing service. Timeouts and 5xx
// responses are retried with exponential backoff; 4xx responses fail
// immediately. The caller must not hold any session lock.
func (c *Client) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	body, err := json.Marshal(signRequest{Payload: base64.StdEncoding.EncodeToString(payload)})
	if err != nil {
		return nil, err
	}

	b := &backoff.Backoff{Min: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(b.Duration()):
			}
		}

		signed, retryable, err := c.signOnce(ctx, body)
		if err == nil {
			return signed, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		c.logger.Warn("sign attempt failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("signer unavailable after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) signOnce(ctx context.Context, body []byte) (signed []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.signerURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("signer returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("signer rejected payload with %d", resp.StatusCode)
	}

	var sr signResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&sr); err != nil {
		return nil, false, fmt.Errorf("bad signer response: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(sr.Signed)
	if err != nil {
		return nil, false, fmt.Errorf("bad signer response: %w", err)
	}
	return raw, false, nil
}

type submitRequest struct {
	TournamentID  string `json:"tournament_id"`
	SignedPayload string `json:"signed_payload"`
}

// SubmitResults hands the signed payload to the contract relay. The call is
// fire-and-forget: failures are logged, never propagated, and the session's
// result stays observable through get_result either way.
func (c *Client) SubmitResults(ctx context.Context, tournamentID string, signed []byte) bool {
	body, err := json.Marshal(submitRequest{
		TournamentID:  tournamentID,
		SignedPayload: base64.StdEncoding.EncodeToString(signed),
	})
	if err != nil {
		c.logger.Error("marshal relay request", "error", err)
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.relayURL+"/submit_results", bytes.NewReader(body))
	if err != nil {
		c.logger.Error("build relay request", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("relay submission failed", "tournament", tournamentID, "error", err)
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 300 {
		c.logger.Warn("relay rejected submission", "tournament", tournamentID, "status", resp.StatusCode)
		return false
	}
	return true
}
