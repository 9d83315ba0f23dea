// Package routes provides shared route registration for the MatchGenius API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, so the OpenAPI document always matches the server.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/http/mw"
	"github.com/jmylchreest/matchgenius-api/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("MatchGenius API", version.Get().Short())
	cfg.Info.Description = "Subscription billing API backed by Stripe."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Session token issued by the identity provider, sent as `Authorization: Bearer <token>`.",
		},
		mw.AdminKeyScheme: {
			Type:        "apiKey",
			In:          "header",
			Name:        mw.AdminKeyHeader,
			Description: "Operator key for administrative endpoints.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Billing", Description: "Checkout, customer portal and subscription sync", Extensions: map[string]any{"x-displayName": "Billing"}},
		{Name: "Catalog", Description: "Purchasable products and prices", Extensions: map[string]any{"x-displayName": "Catalog"}},
		{Name: "Admin", Description: "Operator endpoints", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
