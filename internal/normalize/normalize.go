// Package normalize converts raw backlog fields into the exact shapes the
// remote form accepts. Every function here is idempotent.
package normalize

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

const dateLayout = "02/01/2006"

// Identifier keeps only the ASCII digits of raw. It never fails; an empty
// result is rejected by Record.
func Identifier(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Date renders raw as DD/MM/YYYY. It accepts DD/MM/YYYY and YYYY-MM-DD
// strings as well as time.Time values scanned from a date column.
func Date(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return dateString(v)
	case []byte:
		return dateString(string(v))
	case time.Time:
		if v.IsZero() {
			return "", fmt.Errorf("%w: zero birth date", enrich.ErrMalformedInput)
		}
		return v.Format(dateLayout), nil
	case *time.Time:
		if v == nil {
			return "", fmt.Errorf("%w: nil birth date", enrich.ErrMalformedInput)
		}
		return Date(*v)
	case nil:
		return "", fmt.Errorf("%w: missing birth date", enrich.ErrMalformedInput)
	default:
		return "", fmt.Errorf("%w: unsupported birth date type %T", enrich.ErrMalformedInput, raw)
	}
}

func dateString(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	var day, month, year string
	switch {
	case strings.Contains(s, "/"):
		parts := strings.Split(s, "/")
		if len(parts) != 3 {
			return "", fmt.Errorf("%w: birth date %q", enrich.ErrMalformedInput, raw)
		}
		day, month, year = parts[0], parts[1], parts[2]
	case strings.Contains(s, "-"):
		parts := strings.Split(s, "-")
		if len(parts) != 3 {
			return "", fmt.Errorf("%w: birth date %q", enrich.ErrMalformedInput, raw)
		}
		year, month, day = parts[0], parts[1], parts[2]
	default:
		return "", fmt.Errorf("%w: birth date %q has no separator", enrich.ErrMalformedInput, raw)
	}
	if !digits(day, 1, 2) || !digits(month, 1, 2) || !digits(year, 4, 4) {
		return "", fmt.Errorf("%w: birth date %q", enrich.ErrMalformedInput, raw)
	}
	return pad2(day) + "/" + pad2(month) + "/" + year, nil
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

func digits(s string, minLen, maxLen int) bool {
	if len(s) < minLen || len(s) > maxLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Name strips combining marks from raw and upper-cases it, so "Conceição"
// becomes "CONCEICAO". Marks are stripped on both sides of the case mapping:
// some lower-case letters only reach upper case once their mark is gone.
func Name(raw string) string {
	return stripMarks(strings.ToUpper(stripMarks(strings.TrimSpace(raw))))
}

func stripMarks(s string) string {
	// transform.Chain is stateful; build one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Record normalizes every field of rec and rejects records missing an
// identifier or mother's name.
func Record(rec enrich.BacklogRecord) (enrich.NormalizedRecord, error) {
	id := Identifier(rec.ID)
	if id == "" {
		return enrich.NormalizedRecord{}, fmt.Errorf("%w: identifier %q has no digits", enrich.ErrMalformedInput, rec.ID)
	}
	name := Name(rec.MotherName)
	if name == "" {
		return enrich.NormalizedRecord{}, fmt.Errorf("%w: empty mother name for %s", enrich.ErrMalformedInput, id)
	}
	date, err := Date(rec.BirthDate)
	if err != nil {
		return enrich.NormalizedRecord{}, fmt.Errorf("record %s: %w", id, err)
	}
	return enrich.NormalizedRecord{ID: id, BirthDate: date, MotherName: name}, nil
}
