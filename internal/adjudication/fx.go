package adjudication

import (
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/repository"
	"github.com/SalamEnterprise/claims-askes/internal/adjudication/service"
	"go.uber.org/fx"
)

var Module = fx.Module("adjudication.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
