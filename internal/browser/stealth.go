package browser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// acceptLanguage renders languages as an Accept-Language header with
// descending quality values.
func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 1.0 - float64(i)*0.1
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", lang, q))
	}
	return strings.Join(parts, ",")
}

// navigatorScript hides automation markers and aligns navigator properties
// with the identity. It runs before any page script on every document.
func navigatorScript(id enrich.Identity) string {
	langs, _ := json.Marshal(id.Languages)
	plat, _ := json.Marshal(id.Platform)
	return fmt.Sprintf(`(() => {
  const define = (obj, prop, value) => Object.defineProperty(obj, prop, { get: () => value, configurable: true });
  define(Navigator.prototype, 'webdriver', undefined);
  define(Navigator.prototype, 'languages', %s);
  define(Navigator.prototype, 'platform', %s);
  define(Navigator.prototype, 'hardwareConcurrency', %d);
  define(Navigator.prototype, 'deviceMemory', %d);
  define(Navigator.prototype, 'plugins', [1, 2, 3, 4, 5]);
  window.chrome = window.chrome || { runtime: {} };
})();`, langs, plat, id.HardwareConcurrency, id.DeviceMemory)
}
