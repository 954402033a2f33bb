package browser

import (
	"fmt"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/random"
)

// Geolocations are positions inside Ceará used for session identities.
var Geolocations = []enrich.Geolocation{
	{Label: "Fortaleza", Latitude: -3.7319, Longitude: -38.5267, Accuracy: 50},
	{Label: "Caucaia", Latitude: -3.7361, Longitude: -38.6531, Accuracy: 80},
	{Label: "Maracanaú", Latitude: -3.8767, Longitude: -38.6256, Accuracy: 80},
	{Label: "Juazeiro do Norte", Latitude: -7.2131, Longitude: -39.3153, Accuracy: 100},
	{Label: "Sobral", Latitude: -3.6883, Longitude: -40.3497, Accuracy: 100},
	{Label: "Crato", Latitude: -7.2342, Longitude: -39.4094, Accuracy: 120},
	{Label: "Itapipoca", Latitude: -3.4944, Longitude: -39.5786, Accuracy: 150},
}

// Viewports are common desktop window sizes.
var Viewports = []enrich.Viewport{
	{Width: 1366, Height: 768},
	{Width: 1440, Height: 900},
	{Width: 1536, Height: 864},
	{Width: 1600, Height: 900},
	{Width: 1920, Height: 1080},
	{Width: 1280, Height: 720},
}

type platform struct {
	navigator string
	uaToken   string
}

var platforms = []platform{
	{navigator: "Win32", uaToken: "Windows NT 10.0; Win64; x64"},
	{navigator: "MacIntel", uaToken: "Macintosh; Intel Mac OS X 10_15_7"},
	{navigator: "Linux x86_64", uaToken: "X11; Linux x86_64"},
}

var chromeMajors = []int{128, 129, 130, 131, 132, 133, 134}

// IdentityConfig fixes the locale-related parts of every identity.
type IdentityConfig struct {
	Locale    string
	Languages []string
	Timezone  string
}

// IdentityPicker draws identities from the fixed pools.
type IdentityPicker struct {
	cfg IdentityConfig
	rnd random.Source
}

// NewIdentityPicker creates a picker. Blank config fields default to pt-BR
// and America/Fortaleza.
func NewIdentityPicker(cfg IdentityConfig, rnd random.Source) *IdentityPicker {
	if cfg.Locale == "" {
		cfg.Locale = "pt-BR"
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = []string{cfg.Locale, "pt", "en-US", "en"}
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Fortaleza"
	}
	return &IdentityPicker{cfg: cfg, rnd: rnd}
}

// Next returns a freshly drawn identity.
func (p *IdentityPicker) Next() enrich.Identity {
	plat := platforms[p.rnd.IntN(len(platforms))]
	major := chromeMajors[p.rnd.IntN(len(chromeMajors))]
	return enrich.Identity{
		UserAgent: fmt.Sprintf(
			"Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
			plat.uaToken, major),
		Platform:            plat.navigator,
		Locale:              p.cfg.Locale,
		Languages:           append([]string(nil), p.cfg.Languages...),
		Timezone:            p.cfg.Timezone,
		Viewport:            Viewports[p.rnd.IntN(len(Viewports))],
		Geolocation:         Geolocations[p.rnd.IntN(len(Geolocations))],
		HardwareConcurrency: []int{4, 8, 12, 16}[p.rnd.IntN(4)],
		DeviceMemory:        []int{4, 8, 16}[p.rnd.IntN(3)],
	}
}
