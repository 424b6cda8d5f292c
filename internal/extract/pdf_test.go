package extract

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

func TestContentStreamLines(t *testing.T) {
	t.Parallel()

	stream := []byte(`BT
/F1 18 Tf
72 720 Td
(C\342mera IP VIP 1230) Tj
0 -20 Td
[(Resolu) 10 (\347\343o: 2 MP)] TJ
T*
(Alimenta\347\343o ... 12 Vdc) Tj
ET`)
	lines := contentStreamLines(stream)
	require.Equal(t, []string{"Câmera IP VIP 1230", "Resolução: 2 MP", "Alimentação ... 12 Vdc"}, lines)
}

func TestSplitKeyValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want datasheet.Attribute
		ok   bool
	}{
		{"Resolução: 2 MP", datasheet.Attribute{Key: "Resolução", Value: "2 MP"}, true},
		{"Alimentação ...... 12 Vdc", datasheet.Attribute{Key: "Alimentação", Value: "12 Vdc"}, true},
		{"Lente  3,6 mm", datasheet.Attribute{Key: "Lente", Value: "3,6 mm"}, true},
		{"IP: 67", datasheet.Attribute{}, false},
		{"Especificações técnicas: ", datasheet.Attribute{}, false},
		{"linha sem separador", datasheet.Attribute{}, false},
	}
	for _, tt := range tests {
		got, ok := splitKeyValue(tt.line)
		require.Equal(t, tt.ok, ok, tt.line)
		require.Equal(t, tt.want, got, tt.line)
	}
}

func TestPDFExtractor_ParseLines(t *testing.T) {
	t.Parallel()

	ex := NewPDFExtractor(nil, PDFConfig{
		Site:          "INTELBRAS",
		FallbackTitle: "Produto Intelbras PDF",
		NoiseMarkers:  []string{"intelbras.com.br", "sujeitas a alteração"},
	}, nil)
	lines := []string{
		"www.intelbras.com.br",
		"2024",
		"Câmera IP VIP 1230 B G4",
		"A câmera VIP 1230 B G4 possui resolução Full HD e alcance de infravermelho de 30 metros.",
		"Resolução: 1920 x 1080",
		"Garantia: 1 ano",
		"Imagens meramente ilustrativas e especificações sujeitas a alteração sem aviso prévio",
	}
	product := ex.ParseLines(lines, "https://backend.intelbras.com/sites/default/files/datasheet-vip-1230.pdf")
	require.Equal(t, "Câmera IP VIP 1230 B G4", product.Title)
	require.Equal(t, []datasheet.Attribute{{Key: "Resolução", Value: "1920 x 1080"}}, product.Attributes)
	require.Contains(t, product.Description, "resolução Full HD")
	require.NotContains(t, product.Description, "sujeitas")

	empty := ex.ParseLines(nil, "https://backend.intelbras.com/files/datasheet-vip_1230.pdf")
	require.Equal(t, "Datasheet Vip 1230", empty.Title)
	require.Equal(t, DescriptionUnavailable, empty.Description)
}

func TestPDFExtractor_DownloadFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	ex := NewPDFExtractor(srv.Client(), PDFConfig{Site: "INTELBRAS"}, nil)
	_, err := ex.Extract(context.Background(), srv.URL+"/missing.pdf", t.TempDir())
	require.EqualError(t, err, "download datasheet PDF: unexpected status 404")
}

func TestPDFExtractor_RejectsNonPDF(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not a pdf</html>"))
	}))
	defer srv.Close()

	ex := NewPDFExtractor(srv.Client(), PDFConfig{Site: "INTELBRAS"}, nil)
	_, err := ex.Extract(context.Background(), srv.URL+"/fake.pdf", t.TempDir())
	require.Error(t, err)
	var extractionErr *datasheet.ExtractionError
	require.ErrorAs(t, err, &extractionErr)
}
