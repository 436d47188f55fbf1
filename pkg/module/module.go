// Package module mounts self-contained HTTP handlers under single-segment
// path prefixes, each with its own middleware stack.
package module

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/JaimeStill/dispatch/pkg/middleware"
)

// Module serves an inner handler beneath a prefix such as "/api". Requests
// reach the inner handler with the prefix removed.
type Module struct {
	prefix     string
	router     http.Handler
	middleware middleware.System
	handler    func() http.Handler
}

// New creates a Module. It panics unless prefix is a single segment with a
// leading slash.
func New(prefix string, router http.Handler) *Module {
	if err := validatePrefix(prefix); err != nil {
		panic(err)
	}

	m := &Module{
		prefix:     prefix,
		router:     router,
		middleware: middleware.New(),
	}
	m.handler = sync.OnceValue(func() http.Handler {
		return m.middleware.Apply(m.router)
	})
	return m
}

// Handler returns the inner router wrapped in the module middleware. The
// chain is built on first use; middleware added afterwards is ignored.
func (m *Module) Handler() http.Handler {
	return m.handler()
}

// Prefix returns the module's path prefix.
func (m *Module) Prefix() string {
	return m.prefix
}

// Serve strips the prefix and dispatches to Handler.
func (m *Module) Serve(w http.ResponseWriter, req *http.Request) {
	inner := req.Clone(req.Context())
	inner.URL.Path = orRoot(strings.TrimPrefix(req.URL.Path, m.prefix))
	inner.URL.RawPath = ""

	m.Handler().ServeHTTP(w, inner)
}

// Use appends middleware to the module stack.
func (m *Module) Use(mw ...middleware.Func) {
	m.middleware.Use(mw...)
}

func orRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

func validatePrefix(prefix string) error {
	switch {
	case prefix == "":
		return fmt.Errorf("module prefix cannot be empty")
	case prefix[0] != '/':
		return fmt.Errorf("module prefix must start with /: %s", prefix)
	case strings.Contains(prefix[1:], "/") || len(prefix) == 1:
		return fmt.Errorf("module prefix must be single-level sub-path: %s", prefix)
	}
	return nil
}
