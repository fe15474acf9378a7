package main

import (
	"context"
	"strings"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/aso-insight/platform/go/auth"
	"github.com/zenGate-Global/aso-insight/platform/go/gcp"
)

// buildVerifier selects the token verifier for cfg.AuthProvider. Roles never
// come from tokens; the verifier only establishes who the caller is.
func buildVerifier(ctx context.Context, cfg config, logger *zap.Logger) platformauth.VerifyFunc {
	switch strings.ToLower(strings.TrimSpace(cfg.AuthProvider)) {
	case "jwt":
		if cfg.AuthJWTSecret == "" {
			logger.Fatal("AUTH_JWT_SECRET is required when AUTH_PROVIDER=jwt")
		}
		return platformauth.HMACTokenVerifier([]byte(cfg.AuthJWTSecret), cfg.AuthJWTIssuer)
	case "firebase":
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		return platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using unsigned dev tokens; do not use in production")
		return platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
		return nil
	}
}
