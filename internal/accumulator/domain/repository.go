package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, record *Record) error
	FindByKey(ctx context.Context, db *gorm.DB, key Key) (*Record, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Record, error)
	// ApplyDelta performs the conditional update; ok is false when the
	// version precondition failed.
	ApplyDelta(ctx context.Context, db *gorm.DB, delta Delta) (ok bool, err error)
	ListByMember(ctx context.Context, db *gorm.DB, memberID snowflake.ID, year int) ([]Record, error)
}
