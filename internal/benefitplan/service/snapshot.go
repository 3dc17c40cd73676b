package service

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	benefitplandomain "github.com/SalamEnterprise/claims-askes/internal/benefitplan/domain"
)

// snapshot is an immutable view of all benefit definitions, keyed by
// (plan_id, benefit_code). Resolvers read it through an atomic pointer so a
// reload never blocks concurrent claim workers.
type snapshot struct {
	definitions map[string][]benefitplandomain.BenefitDefinition
	builtAt     time.Time
}

func snapshotKey(planID snowflake.ID, benefitCode string) string {
	return fmt.Sprintf("%d/%s", planID, benefitCode)
}

func buildSnapshot(defs []benefitplandomain.BenefitDefinition, builtAt time.Time) *snapshot {
	index := make(map[string][]benefitplandomain.BenefitDefinition, len(defs))
	for _, def := range defs {
		key := snapshotKey(def.PlanID, def.BenefitCode)
		index[key] = append(index[key], def)
	}
	return &snapshot{definitions: index, builtAt: builtAt}
}

// match returns every definition effective on serviceDate for the pair.
func (s *snapshot) match(planID snowflake.ID, benefitCode string, serviceDate time.Time) []benefitplandomain.BenefitDefinition {
	if s == nil {
		return nil
	}
	candidates := s.definitions[snapshotKey(planID, benefitCode)]
	var matched []benefitplandomain.BenefitDefinition
	for _, def := range candidates {
		if def.AppliesOn(serviceDate) {
			matched = append(matched, def)
		}
	}
	return matched
}

func (s *snapshot) has(planID snowflake.ID, benefitCode string) bool {
	if s == nil {
		return false
	}
	_, ok := s.definitions[snapshotKey(planID, benefitCode)]
	return ok
}
