package uploader

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
)

// Client handles communication with the media upload service
type Client struct {
	uploadURL  string
	apiKey     string
	httpClient *http.Client
}

// uploadRequest represents the request to the media service. The
// transformation fields keep the dashboard's 800x600 bounded rendition.
type uploadRequest struct {
	Image  string `json:"image"`
	APIKey string `json:"api_key,omitempty"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Crop   string `json:"crop"`
}

// uploadResponse represents the response from the media service
type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	Error     string `json:"error,omitempty"`
}

// NewClient creates a new media upload client. The timeout bounds the
// whole upload call; an unbounded call would block the submission path.
func NewClient(uploadURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		uploadURL: uploadURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Upload sends an image to the media service and returns its public URL.
func (c *Client) Upload(ctx context.Context, image []byte) (string, error) {
	request := uploadRequest{
		Image:  base64.StdEncoding.EncodeToString(image),
		APIKey: c.apiKey,
		Width:  800,
		Height: 600,
		Crop:   "limit",
	}

	requestBody, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal upload request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	log.Infof("Uploading image to media service: %s, image size: %d bytes", c.uploadURL, len(image))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request to media service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("media service returned status %d", resp.StatusCode)
	}

	var response uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode media service response: %w", err)
	}

	if response.SecureURL == "" {
		return "", fmt.Errorf("media service returned no URL: %s", response.Error)
	}

	log.Infof("Image uploaded: %s", response.SecureURL)

	return response.SecureURL, nil
}
