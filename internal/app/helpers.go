package app

import (
	"os"
	"strings"

	"github.com/mx-space/confetti-bridge/internal/config"
	jwtpkg "github.com/mx-space/confetti-bridge/internal/pkg/jwt"
	"github.com/mx-space/confetti-bridge/internal/pkg/nativelog"
	"go.uber.org/zap"
)

func applyRuntimeSettings(cfg *config.AppConfig, logger *zap.Logger) {
	_ = os.Setenv(nativelog.EnvLogDir, cfg.LogDir())

	if secret := strings.TrimSpace(cfg.JWTSecret); secret != "" {
		jwtpkg.SetSecret(secret)
	} else {
		logger.Warn("jwt_secret is empty, using built-in default secret")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		logger.Warn("api_token is empty, the control API is unauthenticated")
	}
}
