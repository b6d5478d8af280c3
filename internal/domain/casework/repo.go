package casework

import (
	"context"

	"github.com/carecase/console/internal/action"
	"github.com/carecase/console/internal/listing"
)

// Repository reads and mutates the records of one feature.
type Repository[T listing.Record] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	action.Mutator
}
