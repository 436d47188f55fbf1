// Package api assembles the API module with the pipeline, record store, and route registration.
package api

import (
	"fmt"
	"net/http"

	"github.com/JaimeStill/dispatch/internal/config"
	"github.com/JaimeStill/dispatch/internal/infrastructure"
	"github.com/JaimeStill/dispatch/pkg/middleware"
	"github.com/JaimeStill/dispatch/pkg/module"
)

// NewModule creates the API module with all handlers and middleware. When
// auth is enabled the issuer's discovery document is fetched here.
func NewModule(cfg *config.Config, infra *infrastructure.Infrastructure) (*module.Module, error) {
	var verifier middleware.TokenVerifier
	if cfg.API.Auth.Enabled {
		v, err := middleware.NewVerifier(infra.Lifecycle.Context(), &cfg.API.Auth)
		if err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		verifier = v
	}
	return newModule(cfg, infra, verifier), nil
}

// NewModuleWithVerifier is NewModule with a caller-supplied token verifier.
// A nil verifier disables auth.
func NewModuleWithVerifier(
	cfg *config.Config,
	infra *infrastructure.Infrastructure,
	verifier middleware.TokenVerifier,
) *module.Module {
	return newModule(cfg, infra, verifier)
}

func newModule(
	cfg *config.Config,
	infra *infrastructure.Infrastructure,
	verifier middleware.TokenVerifier,
) *module.Module {
	runtime := NewRuntime(cfg, infra)
	domain := NewDomain(cfg, runtime)

	mux := http.NewServeMux()
	registerRoutes(mux, domain, runtime)

	m := module.New(cfg.API.BasePath, mux)
	m.Use(middleware.CORS(&cfg.API.CORS))
	m.Use(middleware.Logger(runtime.Logger))
	if verifier != nil {
		m.Use(middleware.Auth(verifier, runtime.Logger))
	}

	return m
}
