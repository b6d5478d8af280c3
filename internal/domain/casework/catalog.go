package casework

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecase/console/internal/listing"
	"github.com/carecase/console/internal/platform/auth"
	"github.com/carecase/console/internal/platform/flash"
	"github.com/carecase/console/internal/platform/reporting"
)

// Mountable is a feature module the server mounts.
type Mountable interface {
	Info() FeatureInfo
	RegisterRoutes(api *echo.Group)
	Sweep() int
	Close()
	ReportFor(ctx context.Context, c listing.Criteria) (reporting.Report, error)
	Exporter() *reporting.Exporter
}

// Builder creates a module from the shared services.
type Builder func(deps Deps) (Mountable, error)

// For returns the Builder of f.
func For[T listing.Record](f *Feature[T]) Builder {
	return func(deps Deps) (Mountable, error) {
		m, err := NewModule(f, deps)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// MountAll builds every module, stopping at the first error.
func MountAll(deps Deps, builders ...Builder) ([]Mountable, error) {
	mods := make([]Mountable, 0, len(builders))
	for _, b := range builders {
		m, err := b(deps)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// Catalog is the set of mounted features.
type Catalog struct {
	modules []Mountable
	flash   flash.Store
	logger  zerolog.Logger
}

func NewCatalog(store flash.Store, logger zerolog.Logger, modules ...Mountable) *Catalog {
	if store == nil {
		store = flash.NewMemoryStore()
	}
	return &Catalog{modules: modules, flash: store, logger: logger.With().Str("component", "catalog").Logger()}
}

// Visible returns the features op may open, in mount order.
func (c *Catalog) Visible(op auth.Operator) []FeatureInfo {
	out := make([]FeatureInfo, 0, len(c.modules))
	for _, m := range c.modules {
		info := m.Info()
		if canOpen(op, info.Roles) {
			out = append(out, info)
		}
	}
	return out
}

func canOpen(op auth.Operator, roles []string) bool {
	if len(roles) == 0 {
		return op.HasRole(auth.RoleStaff)
	}
	for _, r := range roles {
		if op.HasRole(r) {
			return true
		}
	}
	return false
}

// Lookup returns the module mounted under key.
func (c *Catalog) Lookup(key string) (Mountable, bool) {
	for _, m := range c.modules {
		if m.Info().Key == key {
			return m, true
		}
	}
	return nil, false
}

func (c *Catalog) RegisterRoutes(api *echo.Group) {
	api.GET("/features", c.HandleFeatures)
	api.GET("/flash", c.HandleFlash)
	for _, m := range c.modules {
		m.RegisterRoutes(api)
	}
}

func (c *Catalog) HandleFeatures(ctx echo.Context) error {
	op := auth.OperatorFromContext(ctx.Request().Context())
	if op.ID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"operator": op,
		"features": c.Visible(op),
	})
}

// HandleFlash takes the pending message of ?feature=<key>. It is returned
// once.
func (c *Catalog) HandleFlash(ctx echo.Context) error {
	op := auth.UserIDFromContext(ctx.Request().Context())
	if op == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	feature := ctx.QueryParam("feature")
	if _, ok := c.Lookup(feature); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown feature")
	}
	msg, err := c.flash.Take(ctx.Request().Context(), MessageKey(op, feature))
	if errors.Is(err, flash.ErrMiss) {
		return ctx.NoContent(http.StatusNoContent)
	}
	if err != nil {
		c.logger.Error().Err(err).Str("operator", op).Msg("failed to read flash message")
		return echo.NewHTTPError(http.StatusInternalServerError, "flash store unavailable")
	}
	return ctx.JSON(http.StatusOK, map[string]string{"message": string(msg)})
}

// Sweep evicts idle screens of every feature.
func (c *Catalog) Sweep() int {
	n := 0
	for _, m := range c.modules {
		n += m.Sweep()
	}
	return n
}

// Run sweeps every interval until ctx is done, then closes every module.
func (c *Catalog) Run(ctx context.Context, interval time.Duration, extra ...func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Close()
			return
		case <-ticker.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Debug().Int("evicted", n).Msg("idle screens evicted")
			}
			for _, fn := range extra {
				fn()
			}
		}
	}
}

func (c *Catalog) Close() {
	for _, m := range c.modules {
		m.Close()
	}
}
