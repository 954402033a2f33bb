// Package browser runs isolated headless Chrome sessions through chromedp.
// Each Session owns its own browser process and presents a single client
// Identity: user agent, platform, locale, timezone, viewport, and
// geolocation are installed on every tab before the first navigation.
package browser
