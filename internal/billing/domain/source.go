package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/jukubill/internal/catalog/domain"
	"gorm.io/gorm"
)

type SourceInput struct {
	OrgID   snowflake.ID
	Student *catalogdomain.Student
	Year    int
	Month   int
}

// SnapshotSource produces the billable lines of a student for one month.
// An empty result means the source has no data and the next one is tried.
type SnapshotSource interface {
	Name() SourceType
	Collect(ctx context.Context, db *gorm.DB, in SourceInput) ([]LineItem, error)
}
