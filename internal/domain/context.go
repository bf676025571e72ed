// Package domain defines the shared request context passed through the
// middleware pipeline and consumed by the admission engine.
package domain

import (
	"strings"
	"time"
)

// Request captures the inbound request as seen by admission checks.
type Request struct {
	ID         string
	Method     string
	URL        string
	Headers    map[string]string
	Body       []byte
	RemoteAddr string
	Timestamp  time.Time
}

// Response is the pending response a middleware may populate.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// User describes the authenticated caller, when one exists.
type User struct {
	ID          string
	Roles       []string
	Permissions []string
}

// Context is the mutable state shared by every middleware in a chain.
// Once Aborted is set, no further middleware executes.
type Context struct {
	Request  Request
	Response *Response
	User     *User
	Metadata map[string]any
	Aborted  bool
}

// NewContext constructs a context with initialized maps.
func NewContext(req Request) *Context {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now()
	}
	return &Context{
		Request:  req,
		Metadata: make(map[string]any),
	}
}

// Header returns a request header by case-insensitive name.
func (c *Context) Header(name string) string {
	if c == nil || c.Request.Headers == nil {
		return ""
	}
	if value, ok := c.Request.Headers[name]; ok {
		return value
	}
	lower := strings.ToLower(name)
	if value, ok := c.Request.Headers[lower]; ok {
		return value
	}
	for key, value := range c.Request.Headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}

// EnsureResponse returns the response, allocating it on first use.
func (c *Context) EnsureResponse() *Response {
	if c.Response == nil {
		c.Response = &Response{Headers: make(map[string]string)}
	}
	if c.Response.Headers == nil {
		c.Response.Headers = make(map[string]string)
	}
	return c.Response
}

// Abort marks the chain as terminated.
func (c *Context) Abort() {
	if c == nil {
		return
	}
	c.Aborted = true
}
