// Package imagehost publishes generated images to the NodeImage hosting service.
package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.nodeimage.com"

// Uploader publishes an image and returns where it can be fetched.
type Uploader interface {
	Upload(ctx context.Context, imageBytes []byte, filename string) (*UploadResponse, error)
}

// NodeImageClient handles communication with the NodeImage API.
type NodeImageClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

var _ Uploader = (*NodeImageClient)(nil)

// NewNodeImageClient creates a new NodeImage client. It returns nil if no API key is set.
func NewNodeImageClient(baseURL, apiKey string, client *http.Client) *NodeImageClient {
	if apiKey == "" {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &NodeImageClient{BaseURL: strings.TrimRight(baseURL, "/"), APIKey: apiKey, Client: client}
}

// UploadResponse matches the structure of the successful upload response.
type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ImageID string `json:"image_id"`
	Links   struct {
		Direct string `json:"direct"`
	} `json:"links"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Upload sends the image as a multipart form and returns the hosted links.
func (c *NodeImageClient) Upload(ctx context.Context, imageBytes []byte, filename string) (*UploadResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(imageBytes); err != nil {
		return nil, fmt.Errorf("failed to copy image bytes to form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/upload", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var uploadResp UploadResponse
	if err := c.do(req, &uploadResp); err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	if !uploadResp.Success {
		return nil, fmt.Errorf("nodeimage API reported an error: %s", uploadResp.Message)
	}

	log.Info().Str("image_id", uploadResp.ImageID).Str("url", uploadResp.Links.Direct).Msg("uploaded image to nodeimage")
	return &uploadResp, nil
}

// Delete removes a previously uploaded image.
func (c *NodeImageClient) Delete(ctx context.Context, imageID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.BaseURL+"/api/v1/delete/"+imageID, nil)
	if err != nil {
		return fmt.Errorf("failed to create delete request: %w", err)
	}

	var deleteResp deleteResponse
	if err := c.do(req, &deleteResp); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if !deleteResp.Success {
		return fmt.Errorf("nodeimage API reported an error on delete: %s", deleteResp.Message)
	}
	return nil
}

func (c *NodeImageClient) do(req *http.Request, out any) error {
	req.Header.Set("X-API-Key", c.APIKey)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("nodeimage API returned non-200 status: %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
