// Package middleware provides the HTTP middleware stack along with the CORS,
// request logging and bearer-token layers that run on it.
package middleware

import (
	"net/http"
	"slices"
)

// Func wraps one handler in another.
type Func = func(http.Handler) http.Handler

// System is an ordered middleware stack. The first middleware added is the
// outermost.
type System interface {
	Use(mw ...Func)
	Apply(handler http.Handler) http.Handler
}

type stack []Func

// New creates an empty middleware System.
func New() System {
	return &stack{}
}

func (s *stack) Use(mw ...Func) {
	*s = append(*s, mw...)
}

func (s *stack) Apply(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(*s) {
		handler = mw(handler)
	}
	return handler
}
