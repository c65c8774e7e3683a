package provision

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

// onboardingSections are the placeholders of a tenant created from a paid
// order.
func onboardingSections(companyName, tagline, about string) []models.Section {
	heroSubtitle := tagline
	if heroSubtitle == "" {
		heroSubtitle = "Tu empresa de confianza"
	}
	heroContent := about
	if heroContent == "" {
		heroContent = "Configura este texto desde tu panel de administración."
	}

	sections := []models.Section{{
		Type:     models.SectionHero,
		Title:    "Bienvenido a " + companyName,
		Subtitle: heroSubtitle,
		Content:  heroContent,
		Position: 0,
		IsActive: true,
	}}
	if about != "" {
		sections = append(sections, models.Section{
			Type:     models.SectionAbout,
			Title:    "Sobre Nosotros",
			Content:  about,
			Position: 1,
			IsActive: true,
		})
	}
	return append(sections, models.Section{
		Type:     models.SectionContact,
		Title:    "Contáctanos",
		Subtitle: "Estamos aquí para ayudarte",
		Position: 10,
		IsActive: true,
	})
}

// adminSections are the placeholders of a tenant created from the CLI.
func adminSections(name string) []models.Section {
	return []models.Section{
		{Type: models.SectionHero, Title: "Bienvenido a " + name, Subtitle: "Soluciones profesionales para tu negocio", Position: 10, IsActive: true},
		{Type: models.SectionAbout, Title: "Quiénes Somos", Subtitle: "Conoce nuestra historia y valores", Position: 20, IsActive: true},
		{Type: models.SectionContact, Title: "Contáctanos", Subtitle: "Estamos aquí para ayudarte", Position: 30, IsActive: true},
	}
}

func seedServices(seeds []ServiceSeed) []models.Service {
	services := make([]models.Service, len(seeds))
	for i, s := range seeds {
		services[i] = models.Service{
			Name:        s.Name,
			Icon:        s.Icon,
			Description: s.Description,
			Position:    i * 10,
			IsActive:    true,
			IsFeatured:  s.Featured,
		}
	}
	return services
}

// seedContent stores sections and services for tenantID.
func seedContent(ctx context.Context, tx *gorm.DB, tenantID uuid.UUID, sections []models.Section, services []models.Service) error {
	for i := range sections {
		sections[i].TenantID = tenantID
	}
	for i := range services {
		services[i].TenantID = tenantID
	}
	if len(sections) > 0 {
		if err := tx.WithContext(ctx).Create(&sections).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to seed sections")
		}
	}
	if len(services) > 0 {
		if err := tx.WithContext(ctx).Create(&services).Error; err != nil {
			return pkgerrors.Wrap(err, "failed to seed services")
		}
	}
	return nil
}
