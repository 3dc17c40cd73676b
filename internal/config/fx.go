package config

import "go.uber.org/fx"

// Module provides the application configuration and the hot-reloadable
// review rule set.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewReviewConfigHolder),
)
