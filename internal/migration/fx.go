package migration

import (
	accumulatordomain "github.com/SalamEnterprise/claims-askes/internal/accumulator/domain"
	adjudicationdomain "github.com/SalamEnterprise/claims-askes/internal/adjudication/domain"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
	"github.com/SalamEnterprise/claims-askes/internal/config"
	fundingdomain "github.com/SalamEnterprise/claims-askes/internal/funding/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// The versioned SQL targets postgres; sqlite and mysql
			// deployments are dev conveniences and take the model schema.
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

// AutoMigrate builds the schema straight from the models.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&benefitplandomain.BenefitDefinition{},
		&accumulatordomain.Record{},
		&fundingdomain.LedgerEntry{},
		&fundingdomain.Config{},
		&adjudicationdomain.Result{},
		&adjudicationdomain.LineResult{},
		&adjudicationdomain.AppliedDelta{},
	)
}
