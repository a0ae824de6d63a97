// Package collaborator holds the ports to the remote services the saga steps
// act on (order, kitchen and accounting) and their HTTP implementations.
//
// The step retry handler may replay any call, so the collaborators are
// expected to expose idempotent create/cancel and authorize/release
// operations; duplicates must be detectable or harmless on their side.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// httpClient is shared by every collaborator client. Retries are owned by the
// saga retry handler, so the transport itself does not retry.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// doJSON issues a JSON request and decodes the JSON response into out (out
// may be nil for empty-body endpoints). Non-2xx statuses are returned as
// errors carrying the response body.
func doJSON(ctx context.Context, client *http.Client, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request for %s: %w", url, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return fmt.Errorf("%s %s: status %d: %s", method, url, res.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", url, err)
	}
	return nil
}
