package mw

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/matchgenius-api/internal/auth"
)

// HumaAuthConfig holds dependencies for the Huma auth middleware.
type HumaAuthConfig struct {
	Verifier   TokenVerifier
	CookieName string
	AdminKey   *auth.AdminKeyVerifier
}

const (
	// SecurityScheme is the name of the session security scheme used in OpenAPI.
	SecurityScheme = "bearerAuth"
	// AdminKeyScheme is the name of the operator key security scheme used in OpenAPI.
	AdminKeyScheme = "adminKey"
)

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

const (
	// MetaKeyRequireAdminRole is metadata key for the admin app role requirement.
	MetaKeyRequireAdminRole OperationMetadataKey = "requireAdminRole"
)

// HumaAuth returns a Huma middleware that handles authentication based on operation security.
// It checks ctx.Operation().Security to determine which credential is required.
func HumaAuth(api huma.API, cfg HumaAuthConfig) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil {
			next(ctx)
			return
		}

		if operationRequiresScheme(op, AdminKeyScheme) {
			if !cfg.AdminKey.Verify(ctx.Header(AdminKeyHeader)) {
				huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
				return
			}
			next(ctx)
			return
		}

		if !operationRequiresScheme(op, SecurityScheme) {
			next(ctx)
			return
		}

		token := sessionToken(ctx.Header("Authorization"), ctx.Header("Cookie"), cfg.CookieName)
		if token == "" {
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := validateSession(cfg.Verifier, token)
		if err != nil {
			slog.Debug("auth validation failed", "error", err)
			huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
			return
		}

		if requiresAdminRole(op) && !claims.IsAdmin() {
			huma.WriteErr(api, ctx, http.StatusForbidden, "admin role required")
			return
		}

		next(huma.WithContext(ctx, WithUserClaims(ctx.Context(), claims)))
	}
}

// operationRequiresScheme checks if the operation lists scheme in its security requirements.
func operationRequiresScheme(op *huma.Operation, scheme string) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[scheme]; ok {
			return true
		}
	}
	return false
}

// requiresAdminRole checks operation metadata for the admin role requirement.
func requiresAdminRole(op *huma.Operation) bool {
	if op.Metadata == nil {
		return false
	}
	if val, ok := op.Metadata[string(MetaKeyRequireAdminRole)]; ok {
		if b, ok := val.(bool); ok {
			return b
		}
	}
	return false
}
