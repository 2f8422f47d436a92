// Package xhttp provides the HTTP plumbing shared by xmlstore clients.
package xhttp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

type (
	// Client abstracts a [http.Client] so it can be replaced by fakes on tests (see package xhttptest).
	// It has the same API as [http.Client].
	Client interface {
		Do(req *http.Request) (*http.Response, error)
	}

	// Response is an extension of [http.Response] that holds the fully read response body.
	Response struct {
		*http.Response
		// Data is the response body.
		Data []byte
	}

	// StatusError is returned when a response has a status code that the caller can't handle.
	StatusError struct {
		Method string
		URL    string
		Status int
		Body   []byte
	}
)

// ErrUnexpectedStatus is matched by all [StatusError] errors.
var ErrUnexpectedStatus = errors.New("unexpected status code")

// Do calls [Client.Do] and reads the whole response body into [Response.Data].
// The original [http.Response.Body] will always be read and closed, the caller should ignore
// this field and use [Response.Data] instead.
// Any status code is a successful response, use [NewStatusError] for the ones that can't be handled.
func Do(c Client, req *http.Request) (*Response, error) {
	v, err := c.Do(req)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(v.Body)
	if err != nil {
		return nil, errors.Join(err, v.Body.Close())
	}
	if err := v.Body.Close(); err != nil {
		return nil, fmt.Errorf("xhttp: closing response body: %w", err)
	}
	return &Response{Response: v, Data: body}, nil
}

// NewStatusError creates a [StatusError] for the given response.
func NewStatusError(res *Response) *StatusError {
	err := &StatusError{
		Status: res.StatusCode,
		Body:   res.Data,
	}
	if res.Request != nil {
		err.Method = res.Request.Method
		err.URL = res.Request.URL.String()
	}
	return err
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Status, http.StatusText(e.Status), e.Body)
}

// Is reports whether target is [ErrUnexpectedStatus].
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}
