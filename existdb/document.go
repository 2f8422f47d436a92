package existdb

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/beevik/etree"
	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/xhttp"
	"github.com/birdie-ai/xmlstore/xmlmodel"
	"github.com/google/uuid"
)

// StoreRecords serializes the records with [xmlmodel.Marshal] and stores them as a single document
// named name on the given collection. If name is empty a random name like "<uuid>.xml" is used.
// The name of the stored document is returned.
func StoreRecords[T any](ctx context.Context, c *Client, collection, name string, records []T, opts ...xmlmodel.Option) (string, error) {
	doc, err := xmlmodel.Marshal(records, opts...)
	if err != nil {
		return "", err
	}
	if name == "" {
		name = uuid.NewString() + ".xml"
	}
	if err := c.StoreDocument(ctx, collection, name, doc); err != nil {
		return "", err
	}
	return name, nil
}

// LoadRecords reads a document with [Client.Document] and parses its records with [xmlmodel.Unmarshal].
func LoadRecords[T any](ctx context.Context, c *Client, collection, name string, opts ...xmlmodel.Option) ([]T, error) {
	data, err := c.Document(ctx, collection, name)
	if err != nil {
		return nil, err
	}
	return xmlmodel.Unmarshal[T](data, opts...)
}

// StoreDocument stores the document with the given name on the collection, replacing it if it already exists.
// eXist-db creates the collection if it doesn't exist.
func (c *Client) StoreDocument(ctx context.Context, collection, name string, doc *etree.Document) error {
	resource, err := resourcePath(collection, name)
	if err != nil {
		return err
	}
	data, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("writing document %s: %w", resource, err)
	}
	res, err := c.send(ctx, http.MethodPut, resource, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("storing document %s: %w", resource, err)
	}
	switch res.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: storing document %s", ErrUnauthorized, resource)
	default:
		return fmt.Errorf("storing document %s: %w", resource, xhttp.NewStatusError(res))
	}

	slog.FromCtx(ctx).Debug("document stored", "document", resource, "size", len(data))
	c.notify(ctx, DocumentStored, path.Dir(resource), name)
	return nil
}

// UpdateDocument replaces an existing document.
// If the document doesn't exist an error matching [ErrDocumentNotFound] is returned.
func (c *Client) UpdateDocument(ctx context.Context, collection, name string, doc *etree.Document) error {
	exists, err := c.DocumentExists(ctx, collection, name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, collection, name)
	}
	return c.StoreDocument(ctx, collection, name, doc)
}

// Document reads the document with the given name from the collection.
// If the document doesn't exist an error matching [ErrDocumentNotFound] is returned.
func (c *Client) Document(ctx context.Context, collection, name string) ([]byte, error) {
	resource, err := resourcePath(collection, name)
	if err != nil {
		return nil, err
	}
	res, err := c.send(ctx, http.MethodGet, resource, nil)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", resource, err)
	}
	switch res.StatusCode {
	case http.StatusOK:
		return res.Data, nil
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, resource)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, fmt.Errorf("%w: reading document %s", ErrUnauthorized, resource)
	default:
		return nil, fmt.Errorf("reading document %s: %w", resource, xhttp.NewStatusError(res))
	}
}

// DocumentExists checks if the document with the given name exists on the collection.
func (c *Client) DocumentExists(ctx context.Context, collection, name string) (bool, error) {
	resource, err := resourcePath(collection, name)
	if err != nil {
		return false, err
	}
	res, err := c.send(ctx, http.MethodHead, resource, nil)
	if err != nil {
		return false, fmt.Errorf("checking document %s: %w", resource, err)
	}
	switch res.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("checking document %s: %w", resource, xhttp.NewStatusError(res))
	}
}

// DeleteDocument removes the document with the given name from the collection.
// Deleting a document that doesn't exist is logged and is not an error.
func (c *Client) DeleteDocument(ctx context.Context, collection, name string) error {
	resource, err := resourcePath(collection, name)
	if err != nil {
		return err
	}
	log := slog.FromCtx(ctx).With("document", resource)

	res, err := c.send(ctx, http.MethodDelete, resource, nil)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", resource, err)
	}
	switch res.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		log.Debug("document deleted")
		c.notify(ctx, DocumentDeleted, path.Dir(resource), name)
		return nil
	case http.StatusNotFound:
		log.Warn("document to delete not found")
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: deleting document %s", ErrUnauthorized, resource)
	default:
		return fmt.Errorf("deleting document %s: %w", resource, xhttp.NewStatusError(res))
	}
}

func resourcePath(collection, name string) (string, error) {
	p, err := cleanPath(collection)
	if err != nil {
		return "", err
	}
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return "", fmt.Errorf("%w: invalid document name %q", ErrInvalidPath, name)
	}
	return p + "/" + name, nil
}
