// Package xmldb executes queries against an XML document store and maps the results to records.
//
// The store itself is abstracted by [Store], see package existdb for an eXist-db implementation.
package xmldb

import (
	"context"
	"errors"
)

type (
	// Store resolves collections of an XML document store.
	Store interface {
		// Collection returns the collection at the given path or an error
		// matching [ErrCollectionNotFound] if it doesn't exist.
		Collection(ctx context.Context, path string) (Collection, error)
	}

	// Collection is a resolved collection of the store.
	Collection interface {
		// Query submits the query text and returns the matched resources in order.
		// Failures to submit the query or to read its results match [ErrSubmission].
		Query(ctx context.Context, query string) ([]Fragment, error)
	}

	// Fragment is a raw XML result, one per matched resource.
	// A fragment may hold any number of records.
	Fragment interface {
		Content() string
	}

	// Text is a [Fragment] holding its XML text.
	Text string
)

// Store errors.
var (
	ErrCollectionNotFound = errors.New("collection not found")
	ErrSubmission         = errors.New("query submission failed")
)

// Content returns the fragment XML text.
func (t Text) Content() string {
	return string(t)
}
