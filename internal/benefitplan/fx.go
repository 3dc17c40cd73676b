package benefitplan

import (
	"github.com/SalamEnterprise/claims-askes/internal/benefitplan/repository"
	"github.com/SalamEnterprise/claims-askes/internal/benefitplan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("benefitplan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
