package authz

import (
	"time"

	"github.com/SalamEnterprise/claims-askes/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewFromConfig(cfg config.Config, log *zap.Logger) Client {
	if cfg.AuthzBaseURL == "" {
		log.Warn("no authorization service configured, approving all authorizations")
		return NewStaticClient(nil)
	}
	timeout := time.Duration(cfg.AuthzTimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return NewHTTPClient(cfg.AuthzBaseURL, timeout, log)
}

// Module wires the authorization collaborator client.
var Module = fx.Module("authz",
	fx.Provide(NewFromConfig),
)
