package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/viperadnan-git/usbackup/internal/model"
)

// webhookOpt reads a required string option from a notifier's kind-specific
// options map, failing the same way handlers.stringSliceOpt's siblings do.
func webhookOpt(options map[string]any, key string) (string, error) {
	raw, ok := options[key]
	if !ok {
		return "", fmt.Errorf("%w: notifier missing required option %q", model.ErrConfigInvalid, key)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: notifier option %q must be a non-empty string", model.ErrConfigInvalid, key)
	}
	return s, nil
}

// postJSON sends payload to url and treats any non-2xx response as an error.
func postJSON(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// resultLine renders one RunResult as a single summary line shared by both
// webhook payload builders.
func resultLine(r model.RunResult) string {
	if r.Failed() {
		return fmt.Sprintf("%s %s — %s (%s): %s", statusEmoji("failure"), r.SourceName, r.ErrorKind, r.Elapsed.Round(time.Second), r.ErrorMsg)
	}
	return fmt.Sprintf("%s %s — ok (%s)", statusEmoji("success"), r.SourceName, r.Elapsed.Round(time.Second))
}

func marshalPayload(v map[string]interface{}) ([]byte, error) {
	return json.Marshal(v)
}
