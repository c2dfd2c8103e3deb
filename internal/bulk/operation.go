// Package bulk batches document mutations into a single bulk call and
// accounts for per-item failures.
package bulk

import (
	"net/http"

	"github.com/utafrali/catalog-indexer/internal/domain"
)

// Action is the kind of a bulk operation.
type Action string

const (
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Operation is one document mutation addressed by its document key.
type Operation struct {
	Action   Action
	Key      string
	Document *domain.SearchDocument
	// Upsert creates the document when it does not exist yet.
	Upsert bool
}

// Delete removes the document with the given key.
func Delete(key string) Operation {
	return Operation{Action: ActionDelete, Key: key}
}

// Update writes doc under key, creating it when upsert is set.
func Update(key string, doc *domain.SearchDocument, upsert bool) Operation {
	return Operation{Action: ActionUpdate, Key: key, Document: doc, Upsert: upsert}
}

// ItemResult is the engine's answer for one operation of a bulk call.
type ItemResult struct {
	Action    Action `json:"action"`
	Key       string `json:"key"`
	Status    int    `json:"status"`
	ErrorType string `json:"error_type,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Failed reports whether the item did not apply. Deleting an already missing
// document is not a failure.
func (r ItemResult) Failed() bool {
	if r.Action == ActionDelete && r.Status == http.StatusNotFound {
		return false
	}
	return r.Status < 200 || r.Status >= 300
}
