// Package workflow defines the workflow model exchanged with the automation
// service's REST API.
package workflow

import (
	"encoding/json"
	"fmt"
	"time"
)

// Workflow is a named automation graph plus metadata. ID is assigned by the
// server on creation and differs between instances.
type Workflow struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Nodes       []Node         `json:"nodes"`
	Connections map[string]any `json:"connections"`
	Tags        []Tag          `json:"tags,omitempty"`
	Active      bool           `json:"active"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
}

// Node is one step in a workflow graph. A non-empty Credentials bag means the
// node needs a secret binding on the server it runs on. Parameters may embed
// references to other workflows, either as a bare "workflowId" string or as a
// structured {value, cachedResultName} object.
type Node struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	TypeVersion int            `json:"typeVersion"`
	Position    [2]float64     `json:"position"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Credentials map[string]any `json:"credentials,omitempty"`
}

// Tag labels a workflow. Tag IDs are server-assigned and not portable.
type Tag struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Clone returns a deep, independent copy of the workflow via a JSON round
// trip, so callers can mutate the copy and retry against the original.
func (w *Workflow) Clone() (*Workflow, error) {
	data, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("clone workflow %q: %w", w.Name, err)
	}
	var out Workflow
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone workflow %q: %w", w.Name, err)
	}
	return &out, nil
}

// HasCredentials reports whether any node carries a non-empty credentials bag.
func (w *Workflow) HasCredentials() bool {
	for _, n := range w.Nodes {
		if len(n.Credentials) > 0 {
			return true
		}
	}
	return false
}

// HasTag reports whether the workflow carries a tag with the given name.
func (w *Workflow) HasTag(name string) bool {
	for _, t := range w.Tags {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CreateBody builds the POST body for creating this workflow on a server.
// Server-assigned fields (id, timestamps, tag ids) are stripped; the target
// rejects payloads that try to set them.
func (w *Workflow) CreateBody() map[string]any {
	body := map[string]any{
		"name":  w.Name,
		"nodes": w.Nodes,
	}
	if w.Connections != nil {
		body["connections"] = w.Connections
	} else {
		body["connections"] = map[string]any{}
	}
	if w.Settings != nil {
		body["settings"] = w.Settings
	}
	return body
}

// FilterByTags returns the workflows carrying at least one of the given tag
// names. An empty tag list selects everything.
func FilterByTags(workflows []Workflow, tags []string) []Workflow {
	if len(tags) == 0 {
		return workflows
	}
	var out []Workflow
	for _, wf := range workflows {
		for _, tag := range tags {
			if wf.HasTag(tag) {
				out = append(out, wf)
				break
			}
		}
	}
	return out
}
