package incident

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dexpositosanchez/fyntra/internal/remote"
)

// API is the remote incident resource
type API interface {
	List(ctx context.Context) ([]Incident, error)
	Get(ctx context.Context, id int64) (*Incident, error)
	Create(ctx context.Context, payload json.RawMessage) (*Incident, error)
	Update(ctx context.Context, id int64, payload json.RawMessage) (*Incident, error)
	Delete(ctx context.Context, id int64) error
}

// Doer is the subset of remote.Client the incident API needs
type Doer interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

// RemoteAPI implements API over the Fyntra REST client
type RemoteAPI struct {
	client Doer
}

// NewRemoteAPI creates the incident API on top of client
func NewRemoteAPI(client Doer) *RemoteAPI {
	return &RemoteAPI{client: client}
}

var _ Doer = (*remote.Client)(nil)

func itemPath(id int64) string {
	return fmt.Sprintf("%s/%d", Resource, id)
}

// List fetches every incident visible to the current user
func (a *RemoteAPI) List(ctx context.Context) ([]Incident, error) {
	var incs []Incident
	if err := a.client.Do(ctx, "GET", Resource, nil, &incs); err != nil {
		return nil, fmt.Errorf("listing incidents: %w", err)
	}
	return incs, nil
}

// Get fetches one incident
func (a *RemoteAPI) Get(ctx context.Context, id int64) (*Incident, error) {
	var inc Incident
	if err := a.client.Do(ctx, "GET", itemPath(id), nil, &inc); err != nil {
		return nil, fmt.Errorf("getting incident %d: %w", id, err)
	}
	return &inc, nil
}

// Create posts a new incident to the collection
func (a *RemoteAPI) Create(ctx context.Context, payload json.RawMessage) (*Incident, error) {
	var inc Incident
	if err := a.client.Do(ctx, "POST", Resource, payload, &inc); err != nil {
		return nil, fmt.Errorf("creating incident: %w", err)
	}
	return &inc, nil
}

// Update puts a partial body to the incident
func (a *RemoteAPI) Update(ctx context.Context, id int64, payload json.RawMessage) (*Incident, error) {
	var inc Incident
	if err := a.client.Do(ctx, "PUT", itemPath(id), payload, &inc); err != nil {
		return nil, fmt.Errorf("updating incident %d: %w", id, err)
	}
	return &inc, nil
}

// Delete removes the incident
func (a *RemoteAPI) Delete(ctx context.Context, id int64) error {
	if err := a.client.Do(ctx, "DELETE", itemPath(id), nil, nil); err != nil {
		return fmt.Errorf("deleting incident %d: %w", id, err)
	}
	return nil
}
