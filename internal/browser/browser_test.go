package browser

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
	"github.com/JakeFAU/voter-enrichment/internal/random"
)

func TestIdentityPickerDefaults(t *testing.T) {
	t.Parallel()

	p := NewIdentityPicker(IdentityConfig{}, random.New(11))
	for i := 0; i < 50; i++ {
		id := p.Next()
		require.Equal(t, "pt-BR", id.Locale)
		require.Equal(t, "America/Fortaleza", id.Timezone)
		require.Equal(t, []string{"pt-BR", "pt", "en-US", "en"}, id.Languages)
		require.Contains(t, Viewports, id.Viewport)
		require.Contains(t, Geolocations, id.Geolocation)
		require.True(t, strings.HasPrefix(id.UserAgent, "Mozilla/5.0 ("))
		require.Contains(t, id.UserAgent, "Chrome/")
		require.NotEmpty(t, id.Platform)
		require.Positive(t, id.HardwareConcurrency)
		require.Positive(t, id.DeviceMemory)
	}
}

func TestIdentityPickerIsDeterministicForSeed(t *testing.T) {
	t.Parallel()

	a := NewIdentityPicker(IdentityConfig{}, random.New(5))
	b := NewIdentityPicker(IdentityConfig{}, random.New(5))
	for i := 0; i < 10; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestIdentityLanguagesAreCopied(t *testing.T) {
	t.Parallel()

	p := NewIdentityPicker(IdentityConfig{Locale: "pt-BR", Languages: []string{"pt-BR", "pt"}}, random.New(1))
	first := p.Next()
	first.Languages[0] = "xx"
	require.Equal(t, "pt-BR", p.Next().Languages[0])
}

func TestAcceptLanguage(t *testing.T) {
	t.Parallel()

	require.Equal(t, "pt-BR,pt;q=0.9,en-US;q=0.8", acceptLanguage([]string{"pt-BR", "pt", "en-US"}))
	require.Equal(t, "", acceptLanguage(nil))
}

func TestNavigatorScript(t *testing.T) {
	t.Parallel()

	script := navigatorScript(enrich.Identity{
		Platform:            "Win32",
		Languages:           []string{"pt-BR", "pt"},
		HardwareConcurrency: 8,
		DeviceMemory:        16,
	})
	require.Contains(t, script, `'languages', ["pt-BR","pt"]`)
	require.Contains(t, script, `'platform', "Win32"`)
	require.Contains(t, script, `'hardwareConcurrency', 8`)
	require.Contains(t, script, `'deviceMemory', 16`)
	require.Contains(t, script, `'webdriver', undefined`)
}

func TestAllocatorOptionsIncludeExecPath(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{Headless: true, ExecPath: "/opt/chrome"}, nil)
	id := NewIdentityPicker(IdentityConfig{}, random.New(1)).Next()
	base := NewLauncher(Config{Headless: true}, nil)
	require.Len(t, l.allocatorOptions(id), len(base.allocatorOptions(id))+1)
}

func TestOpenFailsWithMissingBinary(t *testing.T) {
	t.Parallel()

	l := NewLauncher(Config{Headless: true, ExecPath: "/nonexistent/chrome-binary", StartTimeout: 5 * time.Second}, nil)
	id := NewIdentityPicker(IdentityConfig{}, random.New(1)).Next()
	_, err := l.Open(context.Background(), id)
	require.ErrorIs(t, err, enrich.ErrSessionInit)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	calls := 0
	s := &Session{ctx: context.Background(), cancel: func() { calls++ }}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.Equal(t, 1, calls)
}
