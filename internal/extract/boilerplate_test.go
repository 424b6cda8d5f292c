package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

func TestCleanDescription(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "   ", DescriptionUnavailable},
		{"only boilerplate", "Garantia de 12 meses\nFrete grátis", DescriptionSparse},
		{"too short after cleanup", "ok\nab", DescriptionSparse},
		{
			name: "strips bullets and boilerplate",
			in:   "• Mouse óptico com 1600 DPI\nCompre com desconto, pagamento em 10x\n- Conexão USB plug and play\nx",
			want: "Mouse óptico com 1600 DPI\nConexão USB plug and play",
		},
		{"collapses inner whitespace", "Teclado   mecânico\tABNT2 completo", "Teclado mecânico ABNT2 completo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, CleanDescription(tt.in))
		})
	}
}

func TestFilterAttributes(t *testing.T) {
	t.Parallel()

	got := FilterAttributes([]datasheet.Attribute{
		{Key: "Marca:", Value: " Logitech "},
		{Key: "Garantia do vendedor", Value: "3 meses"},
		{Key: "Cor", Value: ""},
		{Key: "marca", Value: "Outra"},
		{Key: "Peso", Value: "90 g"},
	})
	require.Equal(t, []datasheet.Attribute{
		{Key: "Marca", Value: "Logitech"},
		{Key: "Peso", Value: "90 g"},
	}, got)
}

func TestNormalizeFallbacks(t *testing.T) {
	t.Parallel()

	p := Normalize(datasheet.Product{}, "Produto Mercado Livre")
	require.Equal(t, "Produto Mercado Livre", p.Title)
	require.Equal(t, DescriptionUnavailable, p.Description)
	require.Empty(t, p.Attributes)

	p = Normalize(datasheet.Product{Title: "  "}, "")
	require.Equal(t, UntitledProduct, p.Title)
}

func TestContainsForbiddenIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	require.True(t, ContainsForbidden("Vendido pela AMAZON"))
	require.False(t, ContainsForbidden("Processador Intel Core i5"))
	require.NotSame(t, &forbiddenTerms[0], &ForbiddenTerms()[0])
}
