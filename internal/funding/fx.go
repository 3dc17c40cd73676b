package funding

import (
	"github.com/SalamEnterprise/claims-askes/internal/funding/repository"
	"github.com/SalamEnterprise/claims-askes/internal/funding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("funding.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
