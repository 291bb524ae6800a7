package category

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sage/pkg/database"
	"github.com/Ramsey-B/sage/pkg/models"
	"github.com/Ramsey-B/sage/pkg/tracing"
)

const categoryTable = "categories"

// Repository reads the category catalog: tenant-owned rows plus the shared
// rows with a null tenant_id.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new category repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByName resolves a category name for the tenant, preferring a
// tenant-owned category over a shared one of the same name.
func (r *Repository) GetByName(ctx context.Context, tenantID, name string) (*models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name")
	sb.From(categoryTable)
	sb.Where(
		sb.Equal("name", name),
		sb.Or(sb.IsNull("tenant_id"), sb.Equal("tenant_id", tenantID)),
	)
	sb.OrderBy("tenant_id NULLS LAST")
	sb.Limit(1)

	query, args := sb.Build()

	var cat models.Category
	if err := database.QuerierFrom(ctx, r.db).GetContext(ctx, &cat, query, args...); err != nil {
		if database.IsNotFound(err) {
			return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "category %q not found", name)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id": tenantID,
			"name":      name,
		}).Error("Failed to get category by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get category")
	}
	return &cat, nil
}

// List returns every category visible to the tenant.
func (r *Repository) List(ctx context.Context, tenantID string) ([]models.Category, error) {
	ctx, span := tracing.StartSpan(ctx, "category.Repository.List")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name")
	sb.From(categoryTable)
	sb.Where(sb.Or(sb.IsNull("tenant_id"), sb.Equal("tenant_id", tenantID)))
	sb.OrderBy("name")

	query, args := sb.Build()

	var cats []models.Category
	if err := database.QuerierFrom(ctx, r.db).SelectContext(ctx, &cats, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tenant_id", tenantID).Error("Failed to list categories")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list categories")
	}
	return cats, nil
}
