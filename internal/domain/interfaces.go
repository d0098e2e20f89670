package domain

import "context"

// DocumentStore is the keyed cache of previously computed documents
type DocumentStore interface {
	// Get returns the document cached for a job; a miss is reported as an error
	Get(ctx context.Context, jobID string) (*Document, error)

	// Set stores a document under a job identifier
	Set(ctx context.Context, jobID string, doc *Document) error
}

// ManualImageSource exposes the caller-owned manual image placements
type ManualImageSource interface {
	// ImagesFor returns the manual images of a page in insertion order
	ImagesFor(pageNumber int) []ImageRegion
}

// Submitter hands a binary payload to the remote processing backend
type Submitter interface {
	// Submit uploads the payload and returns the job identifier
	Submit(ctx context.Context, filename string, payload []byte) (string, error)
}
