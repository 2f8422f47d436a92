// Package xhttptest provides a fake HTTP client to test code talking to HTTP services.
package xhttptest

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Client fakes an HTTP client: it records requests and answers them with queued responses.
// It is safe to use the client concurrently.
type Client struct {
	requests  []Request
	responses []response
	mutex     sync.Mutex
}

// Request is a request received by [Client] with its body already read.
type Request struct {
	*http.Request
	Body string
}

// NewClient creates a http client for test purposes.
func NewClient() *Client {
	return &Client{}
}

// PushResponse will push the given response on the response queue of this [Client].
// Calls to [Client.Do] will use the provided responses and will give an error when no
// response is defined for a request. Pushed responses are handled in a FIFO manner (queue).
func (c *Client) PushResponse(res *http.Response) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.responses = append(c.responses, response{
		res: res,
	})
}

// Push pushes a response with the given status code and body, see [Client.PushResponse].
func (c *Client) Push(status int, body string) {
	c.PushResponse(&http.Response{
		StatusCode: status,
		Status:     fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:     http.Header{},
		Body:       io.NopCloser(strings.NewReader(body)),
	})
}

// PushError will push the given error on the response queue of this [Client].
// Calls to [Client.Do] will use the provided error as a result to a request.
// Errors are enqueued with success responses [Client.PushResponse].
func (c *Client) PushError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.responses = append(c.responses, response{
		err: err,
	})
}

// Requests returns all received requests on this client.
func (c *Client) Requests() []Request {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return append([]Request(nil), c.requests...)
}

// Pending returns the number of queued responses not consumed yet.
func (c *Client) Pending() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return len(c.responses)
}

// Do records requests and sends responses/errors.
// To control responses/error use [Client.Push], [Client.PushResponse] and [Client.PushError].
// To check received requests use [Client.Requests].
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var body string
	if req.Body != nil {
		data, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
		body = string(data)
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.requests = append(c.requests, Request{Request: req, Body: body})

	if len(c.responses) == 0 {
		return nil, fmt.Errorf("no response configured on fake client for request: %s %s", req.Method, req.URL)
	}

	response := c.responses[0]
	c.responses = c.responses[1:]
	return response.res, response.err
}

type response struct {
	res *http.Response
	err error
}
