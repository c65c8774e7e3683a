package provision

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/pandeptwidyaop/multisite/internal/db/models"
)

var hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ServiceSeed is a placeholder service created for a new tenant.
type ServiceSeed struct {
	Name        string
	Icon        string
	Description string
	Featured    bool
}

// Preset is the starting point of an industry template.
type Preset struct {
	Label          string
	PrimaryColor   string
	SecondaryColor string
	Services       []ServiceSeed
}

var presets = map[models.Template]Preset{
	models.TemplateElectricidad: {
		Label:          "Servicios Eléctricos",
		PrimaryColor:   "#f59e0b",
		SecondaryColor: "#fef3c7",
		Services: []ServiceSeed{
			{"Instalaciones Eléctricas", "⚡", "Instalaciones residenciales, comerciales e industriales", true},
			{"Mantención Preventiva", "🔧", "Programas de mantención para evitar fallas", true},
			{"Emergencias 24/7", "🚨", "Servicio de urgencias las 24 horas", false},
			{"Certificaciones SEC", "📋", "Certificación de instalaciones eléctricas", false},
		},
	},
	models.TemplateConstruccion: {
		Label:          "Construcción",
		PrimaryColor:   "#dc2626",
		SecondaryColor: "#fef2f2",
		Services: []ServiceSeed{
			{"Construcción", "🏗️", "Obras nuevas residenciales y comerciales", true},
			{"Remodelación", "🔨", "Ampliaciones y remodelaciones", true},
			{"Obras Menores", "🧱", "Trabajos de albañilería y terminaciones", false},
			{"Proyectos", "📐", "Diseño y gestión de proyectos", false},
		},
	},
	models.TemplateServiciosProfesionales: {
		Label:          "Servicios Profesionales",
		PrimaryColor:   "#0ea5e9",
		SecondaryColor: "#f0f9ff",
		Services: []ServiceSeed{
			{"Consultoría", "💼", "Asesoría especializada para tu negocio", true},
			{"Capacitación", "📚", "Programas de formación y desarrollo", true},
			{"Soporte", "🛠️", "Asistencia técnica continua", false},
		},
	},
	models.TemplatePortafolio: {
		Label:          "Portafolio",
		PrimaryColor:   "#8b5cf6",
		SecondaryColor: "#f5f3ff",
		Services: []ServiceSeed{
			{"Desarrollo Web", "🌐", "Sitios web modernos y responsivos", true},
			{"Diseño", "🎨", "Identidad visual y branding", true},
			{"Marketing Digital", "📱", "Estrategias de marketing online", false},
		},
	},
}

var genericServices = []ServiceSeed{
	{"Consultoría", "💼", "Asesoramiento profesional para tu negocio", true},
	{"Desarrollo", "💻", "Soluciones tecnológicas a medida", true},
	{"Soporte", "🛠️", "Asistencia técnica continua", false},
}

// PresetFor returns the preset of an industry template. Templates without
// one get the platform colors and generic services.
func PresetFor(t models.Template) Preset {
	if p, ok := presets[t]; ok {
		return p
	}
	return Preset{
		Label:          "Personalizado",
		PrimaryColor:   models.DefaultPrimaryColor,
		SecondaryColor: models.DefaultSecondaryColor,
		Services:       genericServices,
	}
}

// IsHexColor reports whether c has the #rrggbb form.
func IsHexColor(c string) bool {
	return hexColorRegex.MatchString(c)
}

// Darken scales each channel of a #rrggbb color by 0.7. Malformed input
// yields the default secondary color.
func Darken(c string) string {
	if !IsHexColor(c) {
		return models.DefaultSecondaryColor
	}
	var rgb [3]int64
	for i := range rgb {
		v, err := strconv.ParseInt(c[1+2*i:3+2*i], 16, 64)
		if err != nil {
			return models.DefaultSecondaryColor
		}
		rgb[i] = v * 7 / 10
	}
	return fmt.Sprintf("#%02x%02x%02x", rgb[0], rgb[1], rgb[2])
}
