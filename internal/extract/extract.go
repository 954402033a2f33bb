// Package extract turns the rendered result page into an enrich.Outcome.
package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

// Stage names the interaction stage reported when parsing fails.
const Stage = "extract"

// Selectors locates the result fragments on the page.
type Selectors struct {
	Container       string
	Labels          string
	Descriptions    string
	BiometryMarker  string
	NotFoundMessage string
}

// DefaultSelectors returns the selectors used by the TRE-CE result page.
func DefaultSelectors() Selectors {
	return Selectors{
		Container:       ".componente-onde-votar",
		Labels:          ".lado-ov .data-box .label",
		Descriptions:    ".lado-ov .data-box .desc",
		BiometryMarker:  "ELEITOR/ELEITORA COM BIOMETRIA COLETADA",
		NotFoundMessage: "Pessoa não encontrada no sistema do TRE",
	}
}

type setter func(r *enrich.Result, v *string)

var fields = map[string]setter{
	"Local de votação": func(r *enrich.Result, v *string) { r.Local = v },
	"Endereço":         func(r *enrich.Result, v *string) { r.Endereco = v },
	"Município/UF":     func(r *enrich.Result, v *string) { r.Municipio = v },
	"Bairro":           func(r *enrich.Result, v *string) { r.Bairro = v },
	"Seção":            func(r *enrich.Result, v *string) { r.Secao = v },
	"País":             func(r *enrich.Result, v *string) { r.Pais = v },
	"Zona":             func(r *enrich.Result, v *string) { r.Zona = v },
}

// Extractor parses result pages. It is safe for concurrent use.
type Extractor struct {
	sel Selectors
}

// New creates an Extractor, filling blank selectors with defaults.
func New(sel Selectors) *Extractor {
	def := DefaultSelectors()
	if sel.Container == "" {
		sel.Container = def.Container
	}
	if sel.Labels == "" {
		sel.Labels = def.Labels
	}
	if sel.Descriptions == "" {
		sel.Descriptions = def.Descriptions
	}
	if sel.BiometryMarker == "" {
		sel.BiometryMarker = def.BiometryMarker
	}
	if sel.NotFoundMessage == "" {
		sel.NotFoundMessage = def.NotFoundMessage
	}
	return &Extractor{sel: sel}
}

// Extract classifies html as success or not-found. Only an unparseable
// document yields a technical failure.
func (e *Extractor) Extract(html string) enrich.Outcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return enrich.TechnicalFailure(Stage, fmt.Errorf("parse result page: %w", err))
	}
	if doc.Find(e.sel.Container).Length() == 0 {
		return enrich.NotFound(e.sel.NotFoundMessage)
	}

	labels := texts(doc.Find(e.sel.Labels))
	descs := texts(doc.Find(e.sel.Descriptions))
	n := min(len(labels), len(descs))

	var res enrich.Result
	for i := 0; i < n; i++ {
		set, ok := fields[labels[i]]
		if !ok {
			continue
		}
		if descs[i] == "" {
			set(&res, nil)
			continue
		}
		v := descs[i]
		set(&res, &v)
	}
	res.Biometria = strings.Contains(visibleText(doc.Find("body")), e.sel.BiometryMarker)
	return enrich.Success(res)
}

// visibleText is the text of sel without script and style contents.
func visibleText(sel *goquery.Selection) string {
	body := sel.Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

func texts(sel *goquery.Selection) []string {
	return sel.Map(func(_ int, s *goquery.Selection) string {
		return strings.Join(strings.Fields(s.Text()), " ")
	})
}
