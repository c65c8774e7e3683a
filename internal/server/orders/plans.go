package orders

import (
	"context"
	"encoding/json"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

// FindPlan loads an active plan by slug.
func FindPlan(ctx context.Context, db *gorm.DB, slug string) (*models.Plan, error) {
	var plan models.Plan
	err := db.WithContext(ctx).
		Where("slug = ? AND is_active = ?", strings.ToLower(strings.TrimSpace(slug)), true).
		First(&plan).Error
	if err != nil {
		if pkgerrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound("plan not found", pkgerrors.ErrPlanNotFound)
		}
		return nil, pkgerrors.Wrap(err, "failed to get plan")
	}
	return &plan, nil
}

// ListPlans returns the active plans in display order.
func ListPlans(ctx context.Context, db *gorm.DB) ([]models.Plan, error) {
	var plans []models.Plan
	if err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("display_order ASC, price ASC").
		Find(&plans).Error; err != nil {
		return nil, pkgerrors.Wrap(err, "failed to list plans")
	}
	return plans, nil
}

func jsonList(values ...string) datatypes.JSON {
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}

// DefaultPlans is the catalog installed by SetupPlans.
func DefaultPlans() []models.Plan {
	return []models.Plan{
		{
			Slug:         "essential",
			Name:         "Esencial",
			Description:  "Sitio profesional con subdominio incluido",
			Price:        150000,
			RenewalPrice: 150000,
			Currency:     DefaultCurrency,
			Features: jsonList(
				"Sitio web profesional",
				"Subdominio incluido",
				"Formulario de contacto",
				"Soporte por email",
			),
			AvailableThemes: jsonList("default"),
			MaxPages:        5,
			MaxServices:     10,
			MaxImages:       30,
			MaxStorageMB:    50,
			IsActive:        true,
			DisplayOrder:    1,
		},
		{
			Slug:         "pro",
			Name:         "Profesional",
			Description:  "Dominio propio, analítica y soporte prioritario",
			Price:        250000,
			RenewalPrice: 250000,
			Currency:     DefaultCurrency,
			Features: jsonList(
				"Todo lo de Esencial",
				"Dominio personalizado",
				"Google Analytics",
				"Soporte prioritario",
			),
			AvailableThemes:    jsonList("default", "electricidad", "industrial"),
			MaxPages:           10,
			MaxServices:        20,
			MaxImages:          100,
			MaxStorageMB:       200,
			HasCustomDomain:    true,
			HasAnalytics:       true,
			HasPrioritySupport: true,
			IsActive:           true,
			IsFeatured:         true,
			DisplayOrder:       2,
		},
	}
}

// SetupPlans upserts the default catalog by slug. It is safe to run
// repeatedly.
func SetupPlans(ctx context.Context, db *gorm.DB) ([]models.Plan, error) {
	plans := DefaultPlans()
	for i := range plans {
		err := db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "slug"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"name", "description", "price", "renewal_price", "currency",
				"features", "available_themes", "max_pages", "max_services",
				"max_images", "max_storage_mb", "has_custom_domain", "has_analytics",
				"has_priority_support", "has_white_label", "is_active", "is_featured",
				"display_order", "updated_at",
			}),
		}).Create(&plans[i]).Error
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to upsert plan "+plans[i].Slug)
		}
		logger.InfoEvent().Str("plan", plans[i].Slug).Int64("price", plans[i].Price).Msg("Plan installed")
	}
	return ListPlans(ctx, db)
}
