package project

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/domain"
)

// HTTPDirectory is the Directory implementation backed by the
// collaborator's REST API.
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPDirectory creates a directory client for the collaborator service
func NewHTTPDirectory(cfg config.CollaboratorConfig) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

type projectEnvelope struct {
	Project *domain.Project `json:"project"`
	Error   string          `json:"error"`
}

// Get fetches the persisted project record and file tree seed
func (d *HTTPDirectory) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	endpoint := fmt.Sprintf("%s/project/get-project/%s", d.baseURL, url.PathEscape(projectID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build project request: %w", err)
	}
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch project: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}

	var envelope projectEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to decode project response: %w", err)
	}
	if envelope.Error != "" {
		return nil, fmt.Errorf("collaborator error: %s", envelope.Error)
	}

	return envelope.Project, nil
}

type saveFileTreeRequest struct {
	ProjectID string          `json:"projectId"`
	FileTree  domain.FileTree `json:"fileTree"`
}

// SaveFileTree persists the current file tree snapshot
func (d *HTTPDirectory) SaveFileTree(ctx context.Context, projectID string, tree domain.FileTree) error {
	body, err := json.Marshal(saveFileTreeRequest{ProjectID: projectID, FileTree: tree})
	if err != nil {
		return fmt.Errorf("failed to marshal file tree: %w", err)
	}

	endpoint := d.baseURL + "/project/update-file-tree"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build save request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	d.authorize(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to save file tree: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("collaborator returned status %d", resp.StatusCode)
	}
	return nil
}

func (d *HTTPDirectory) authorize(req *http.Request) {
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
}
