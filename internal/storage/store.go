// Package storage provides the DID registry abstraction and its two
// interchangeable backends: an in-memory map for tests and ephemeral
// deployments, and PostgreSQL for durable ones. The backend is selected at
// construction time; see cmd/didd.
package storage

import (
	"context"
	"errors"

	"github.com/RegistryAccord/registryaccord-did-go/internal/model"
)

// Standard error values used across registry implementations. Mutation
// failures are real errors (the HTTP layer maps them to transport codes);
// resolution outcomes are never errors and travel in the result instead.
var (
	// ErrAlreadyRegistered indicates a register call for a DID that exists.
	ErrAlreadyRegistered = errors.New("DID already registered")
	// ErrNotFound indicates the requested DID has no registry record.
	ErrNotFound = errors.New("DID not found")
	// ErrDeactivated indicates a mutation against a deactivated DID.
	ErrDeactivated = errors.New("DID is deactivated")
)

// Registry owns the lifecycle of DIDs this service is authoritative for.
// Implementations must be safe for concurrent use.
type Registry interface {
	// Register stores a new document under did. The stored document gets
	// its id forced to did and created/updated stamped to the current time.
	// Returns ErrAlreadyRegistered when did is already present.
	Register(ctx context.Context, did string, doc model.DIDDocument) error

	// Resolve returns the resolution result for did. Negative outcomes
	// (notFound, deactivated) are encoded in the result, never in the
	// returned error; the error is reserved for backend failures.
	Resolve(ctx context.Context, did string) (*model.DIDResolutionResult, error)

	// Update shallow-merges partial over the stored document, re-forces the
	// document id and bumps updated. Returns ErrNotFound or ErrDeactivated
	// when the record is missing or deactivated.
	Update(ctx context.Context, did string, partial model.DIDDocument) error

	// Deactivate permanently flips the deactivated flag and bumps updated.
	// Returns ErrNotFound when the record is missing. Calling it again on a
	// deactivated record succeeds and re-stamps updated.
	Deactivate(ctx context.Context, did string) error

	// List returns the active (non-deactivated) DIDs in ascending creation
	// order. Deactivated records are never listed.
	List(ctx context.Context) ([]string, error)
}

// Record is the persisted registry entry for one DID. Records are never
// physically deleted; deactivation is a permanent soft state.
type Record struct {
	DID         string
	Document    model.DIDDocument
	CreatedAt   string // RFC3339
	UpdatedAt   string // RFC3339
	Deactivated bool
}

// resolutionFromRecord converts a registry record into the uniform
// resolution result contract shared with the method resolvers.
func resolutionFromRecord(rec Record) *model.DIDResolutionResult {
	doc := rec.Document.Clone()
	res := &model.DIDResolutionResult{
		DIDDocument: &doc,
		DIDDocumentMetadata: model.DIDDocumentMetadata{
			Created:     rec.CreatedAt,
			Updated:     rec.UpdatedAt,
			Deactivated: rec.Deactivated,
		},
	}
	if rec.Deactivated {
		// A deactivated DID still returns its last-known document.
		res.DIDResolutionMetadata = model.DIDResolutionMetadata{
			Error:   model.ErrorDeactivated,
			Message: "DID " + rec.DID + " has been deactivated",
		}
	}
	return res
}

// notFoundResult is the resolution outcome for a DID with no record.
func notFoundResult(did string) *model.DIDResolutionResult {
	return model.ErrorResult(model.ErrorNotFound, "DID "+did+" is not registered")
}
