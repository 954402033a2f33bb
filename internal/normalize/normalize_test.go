package normalize

import (
	"math/rand/v2"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/voter-enrichment/internal/enrich"
)

func TestIdentifier(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"123.456.789-09": "12345678909",
		" 000 111 ":      "000111",
		"abc":            "",
		"":               "",
	}
	for in, want := range cases {
		require.Equal(t, want, Identifier(in), in)
	}
}

func TestIdentifierProperties(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewPCG(1, 2))
	alphabet := []rune("0123456789.-/ abcXYZçã")
	for i := 0; i < 500; i++ {
		var b strings.Builder
		for j := rnd.IntN(20); j > 0; j-- {
			b.WriteRune(alphabet[rnd.IntN(len(alphabet))])
		}
		raw := b.String()
		got := Identifier(raw)
		for _, r := range got {
			require.True(t, r >= '0' && r <= '9')
		}
		var want strings.Builder
		for _, r := range raw {
			if r >= '0' && r <= '9' {
				want.WriteRune(r)
			}
		}
		require.Equal(t, want.String(), got)
		require.Equal(t, got, Identifier(got))
	}
}

func TestDateAccepted(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   any
		want string
	}{
		{"1990-05-21", "21/05/1990"},
		{"21/05/1990", "21/05/1990"},
		{" 1990-5-1 ", "01/05/1990"},
		{[]byte("2001-12-31"), "31/12/2001"},
		{time.Date(1985, time.March, 7, 0, 0, 0, 0, time.UTC), "07/03/1985"},
	}
	for _, tc := range cases {
		got, err := Date(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)

		again, err := Date(got)
		require.NoError(t, err)
		require.Equal(t, got, again)
	}

	ts := time.Date(2000, time.January, 2, 0, 0, 0, 0, time.UTC)
	got, err := Date(&ts)
	require.NoError(t, err)
	require.Equal(t, "02/01/2000", got)
}

func TestDateRejected(t *testing.T) {
	t.Parallel()

	var nilTime *time.Time
	for _, in := range []any{
		"19900521",
		"1990-05",
		"1990--21",
		"21/05/",
		"21/05/1990/1",
		"aa-bb-cccc",
		"",
		nil,
		nilTime,
		time.Time{},
		42,
	} {
		_, err := Date(in)
		require.ErrorIs(t, err, enrich.ErrMalformedInput, "%v", in)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	require.Equal(t, "MARIA DA CONCEICAO", Name("Maria da Conceição"))
	require.Equal(t, "JOAO ANTONIO", Name("  joão antônio "))
	require.Equal(t, "", Name(""))
}

func TestNameProperties(t *testing.T) {
	t.Parallel()

	rnd := rand.New(rand.NewPCG(3, 4))
	alphabet := []rune("abcçãéíóúâêôüñ ÀÉṌxyz")
	for i := 0; i < 500; i++ {
		var b strings.Builder
		for j := rnd.IntN(24); j > 0; j-- {
			b.WriteRune(alphabet[rnd.IntN(len(alphabet))])
		}
		got := Name(b.String())
		for _, r := range got {
			require.False(t, unicode.Is(unicode.Mn, r), "combining mark in %q", got)
		}
		require.Equal(t, strings.ToUpper(got), got)
		require.Equal(t, got, Name(got))
	}
}

func TestNameLettersWithoutPrecomposedUpperCase(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"ǰoana":   "JOANA",
		"maria ẖ": "MARIA H",
		"ΐ":       "Ι",
	}
	for in, want := range cases {
		got := Name(in)
		require.Equal(t, want, got, in)
		require.Equal(t, got, Name(got), in)
	}
}

func TestRecord(t *testing.T) {
	t.Parallel()

	rec, err := Record(enrich.BacklogRecord{ID: "123.456.789-09", BirthDate: "1990-05-21", MotherName: "Ana Lúcia"})
	require.NoError(t, err)
	require.Equal(t, enrich.NormalizedRecord{ID: "12345678909", BirthDate: "21/05/1990", MotherName: "ANA LUCIA"}, rec)

	_, err = Record(enrich.BacklogRecord{ID: "---", BirthDate: "1990-05-21", MotherName: "Ana"})
	require.ErrorIs(t, err, enrich.ErrMalformedInput)

	_, err = Record(enrich.BacklogRecord{ID: "1", BirthDate: "1990-05-21", MotherName: "   "})
	require.ErrorIs(t, err, enrich.ErrMalformedInput)

	_, err = Record(enrich.BacklogRecord{ID: "1", BirthDate: "19900521", MotherName: "Ana"})
	require.ErrorIs(t, err, enrich.ErrMalformedInput)
}
