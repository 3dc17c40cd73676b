package accumulator

import (
	"github.com/SalamEnterprise/claims-askes/internal/accumulator/repository"
	"github.com/SalamEnterprise/claims-askes/internal/accumulator/service"
	"go.uber.org/fx"
)

var Module = fx.Module("accumulator.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
