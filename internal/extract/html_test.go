package extract

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
)

type fakeFetcher struct {
	resp datasheet.FetchResponse
	err  error
	got  datasheet.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req datasheet.FetchRequest) (datasheet.FetchResponse, error) {
	f.got = req
	return f.resp, f.err
}

type fakeImages struct {
	imageURL string
	pageURL  string
	path     string

	captured     []byte
	capturedPath string
}

func (f *fakeImages) Save(_ context.Context, imageURL, pageURL, _ string) string {
	f.imageURL = imageURL
	f.pageURL = pageURL
	return f.path
}

func (f *fakeImages) SaveCaptured(data []byte, _ string) string {
	f.captured = data
	return f.capturedPath
}

const productPage = `<html><head>
<meta property="og:image" content="https://cdn.example.com/og.jpg">
</head><body>
<h1 class="ui-pdp-title">  Mouse Gamer   Logitech G203 </h1>
<p class="ui-pdp-description__content">Sensor de 8000 DPI<br>Iluminação RGB LIGHTSYNC<br>Garantia de 2 anos com o vendedor</p>
<table>
<tr class="andes-table__row"><th>Marca</th><td>Logitech</td></tr>
<tr class="andes-table__row"><th>Garantia</th><td>2 anos</td></tr>
<tr class="andes-table__row"><th>Peso</th><td>85 g</td></tr>
</table>
</body></html>`

func mercadoLivreRecipe() Recipe {
	return Recipe{
		Site:          "MERCADO_LIVRE",
		FallbackTitle: "Produto Mercado Livre",
		Title:         []string{"h1.ui-pdp-title"},
		Description:   []string{"p.ui-pdp-description__content"},
		Image:         []string{"img.ui-pdp-image"},
		SpecRows:      []string{"tr.andes-table__row"},
	}
}

func TestHTMLExtractor_ExtractsProduct(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: datasheet.FetchResponse{
		URL:        "https://produto.mercadolivre.com.br/MLB-1",
		StatusCode: http.StatusOK,
		Body:       []byte(productPage),
	}}
	images := &fakeImages{path: "/tmp/out/tmp_1.jpg"}
	ex, err := NewHTMLExtractor(mercadoLivreRecipe(), fetcher, images, zap.NewNop())
	require.NoError(t, err)

	product, err := ex.Extract(context.Background(), "https://produto.mercadolivre.com.br/MLB-1", "/tmp/out")
	require.NoError(t, err)

	require.Equal(t, "Mouse Gamer Logitech G203", product.Title)
	require.Equal(t, "Sensor de 8000 DPI\nIluminação RGB LIGHTSYNC", product.Description)
	require.Equal(t, []datasheet.Attribute{
		{Key: "Marca", Value: "Logitech"},
		{Key: "Peso", Value: "85 g"},
	}, product.Attributes)
	require.Equal(t, "/tmp/out/tmp_1.jpg", product.ImagePath)
	require.Equal(t, "https://cdn.example.com/og.jpg", images.imageURL)
	require.Equal(t, "https://produto.mercadolivre.com.br/MLB-1", images.pageURL)
	require.Equal(t, "https://produto.mercadolivre.com.br/MLB-1", fetcher.got.URL)
	require.NotEmpty(t, fetcher.got.Headers.Get("Accept-Language"))
	require.Equal(t, "h1.ui-pdp-title", fetcher.got.WaitSelector)
	require.Empty(t, fetcher.got.CaptureSelector)
	require.Nil(t, images.captured)
}

func TestHTMLExtractor_PrefersBrowserCapture(t *testing.T) {
	t.Parallel()

	shot := []byte("\x89PNG captured element")
	fetcher := &fakeFetcher{resp: datasheet.FetchResponse{
		URL:          "https://www.kabum.com.br/produto/1",
		StatusCode:   http.StatusOK,
		Body:         []byte(productPage),
		UsedHeadless: true,
		ProductReady: true,
		Capture:      shot,
	}}
	images := &fakeImages{path: "/tmp/out/downloaded.jpg", capturedPath: "/tmp/out/captured.jpg"}
	recipe := mercadoLivreRecipe()
	recipe.CaptureImage = true
	ex, err := NewHTMLExtractor(recipe, fetcher, images, zap.NewNop())
	require.NoError(t, err)

	product, err := ex.Extract(context.Background(), "https://www.kabum.com.br/produto/1", "/tmp/out")
	require.NoError(t, err)
	require.Equal(t, "/tmp/out/captured.jpg", product.ImagePath)
	require.Equal(t, shot, images.captured)
	require.Empty(t, images.imageURL, "download must not run when the capture was saved")
	require.Equal(t, "h1.ui-pdp-title", fetcher.got.WaitSelector)
	require.Equal(t, "img.ui-pdp-image", fetcher.got.CaptureSelector)
}

func TestHTMLExtractor_DownloadsWhenCaptureUnusable(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{resp: datasheet.FetchResponse{
		URL:        "https://www.kabum.com.br/produto/1",
		StatusCode: http.StatusOK,
		Body:       []byte(productPage),
		Capture:    []byte("not an image"),
	}}
	images := &fakeImages{path: "/tmp/out/downloaded.jpg"}
	recipe := mercadoLivreRecipe()
	recipe.CaptureImage = true
	ex, err := NewHTMLExtractor(recipe, fetcher, images, zap.NewNop())
	require.NoError(t, err)

	product, err := ex.Extract(context.Background(), "https://www.kabum.com.br/produto/1", "/tmp/out")
	require.NoError(t, err)
	require.Equal(t, "/tmp/out/downloaded.jpg", product.ImagePath)
	require.NotNil(t, images.captured)
	require.Equal(t, "https://cdn.example.com/og.jpg", images.imageURL)
}

func TestRecipeFetchRequest(t *testing.T) {
	t.Parallel()

	req := Recipe{Site: "X"}.FetchRequest("https://x", nil)
	require.Equal(t, datasheet.FetchRequest{URL: "https://x"}, req)

	req = Recipe{Site: "X", Title: []string{"h1", "h2"}, Image: []string{"figure img"}}.FetchRequest("https://x", nil)
	require.Equal(t, "h1", req.WaitSelector)
	require.Empty(t, req.CaptureSelector)

	req = Recipe{Site: "X", Image: []string{"figure img"}, CaptureImage: true}.FetchRequest("https://x", nil)
	require.Empty(t, req.WaitSelector)
	require.Equal(t, "figure img", req.CaptureSelector)
}

func TestHTMLExtractor_FallsBackToJSONLD(t *testing.T) {
	t.Parallel()

	page := `<html><head><script type="application/ld+json">
{"@context":"https://schema.org","@graph":[{"@type":"BreadcrumbList"},{"@type":["Product"],
"name":"Geladeira Frost Free 410L","description":"Refrigerador duplex com painel touch e prateleiras de vidro.",
"image":["https://img.example.com/1.jpg"],"brand":{"@type":"Brand","name":"Brastemp"},"sku":12345,
"additionalProperty":[{"name":"Voltagem","value":"220V"}]}]}
</script></head><body><div>nada aqui</div></body></html>`

	ex, err := NewHTMLExtractor(Recipe{Site: "MAGALU", Title: []string{"h1.missing"}}, &fakeFetcher{}, nil, nil)
	require.NoError(t, err)

	product, imageURL, err := ex.Parse([]byte(page))
	require.NoError(t, err)
	require.Equal(t, "Geladeira Frost Free 410L", product.Title)
	require.Equal(t, "Refrigerador duplex com painel touch e prateleiras de vidro.", product.Description)
	require.Equal(t, "https://img.example.com/1.jpg", imageURL)
	require.Equal(t, []datasheet.Attribute{
		{Key: "Marca", Value: "Brastemp"},
		{Key: "Sku", Value: "12345"},
		{Key: "Voltagem", Value: "220V"},
	}, product.Attributes)
}

func TestHTMLExtractor_DefinitionListsAndTableFallback(t *testing.T) {
	t.Parallel()

	page := `<html><body><h1 class="tt-produto-principal">Furadeira 650W</h1>
<dl class="lista-atributos"><dt>Potência</dt><dd>650 W</dd><dt>Tensão</dt><dd>127 V</dd></dl>
</body></html>`
	ex, err := NewHTMLExtractor(Recipe{
		Site:      "MAZER",
		Title:     []string{"h1.tt-produto-principal"},
		SpecTerms: []string{"dl.lista-atributos dt"},
	}, &fakeFetcher{}, nil, nil)
	require.NoError(t, err)
	product, _, err := ex.Parse([]byte(page))
	require.NoError(t, err)
	require.Equal(t, []datasheet.Attribute{{Key: "Potência", Value: "650 W"}, {Key: "Tensão", Value: "127 V"}}, product.Attributes)
	require.Equal(t, DescriptionUnavailable, product.Description)

	tablePage := `<html><body><table><tr><td>Cor</td><td>Preto</td></tr><tr><td>solo</td></tr></table></body></html>`
	ex, err = NewHTMLExtractor(Recipe{Site: "HAYAMAX", FallbackTitle: "Produto Hayamax", TableFallback: true}, &fakeFetcher{}, nil, nil)
	require.NoError(t, err)
	product, _, err = ex.Parse([]byte(tablePage))
	require.NoError(t, err)
	require.Equal(t, "Produto Hayamax", product.Title)
	require.Equal(t, []datasheet.Attribute{{Key: "Cor", Value: "Preto"}}, product.Attributes)
}

func TestHTMLExtractor_Failures(t *testing.T) {
	t.Parallel()

	recipe := Recipe{
		Site:         "AMAZON",
		Title:        []string{"#productTitle"},
		Blocked:      []string{"robot check"},
		RequireTitle: true,
	}
	cause := errors.New("connection reset")

	tests := []struct {
		name    string
		fetcher *fakeFetcher
		want    string
	}{
		{"fetch error", &fakeFetcher{err: cause}, "fetch product page: connection reset"},
		{"http error", &fakeFetcher{resp: datasheet.FetchResponse{StatusCode: 503}}, "product page returned HTTP 503"},
		{
			"captcha",
			&fakeFetcher{resp: datasheet.FetchResponse{StatusCode: 200, Body: []byte("<title>Robot Check</title>")}},
			"blocked by anti-bot page (robot check)",
		},
		{
			"missing title",
			&fakeFetcher{resp: datasheet.FetchResponse{StatusCode: 200, Body: []byte("<html><body></body></html>")}},
			"product title not found on page",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex, err := NewHTMLExtractor(recipe, tt.fetcher, nil, nil)
			require.NoError(t, err)
			_, err = ex.Extract(context.Background(), "https://www.amazon.com.br/dp/B0", t.TempDir())
			require.EqualError(t, err, tt.want)
			var extractionErr *datasheet.ExtractionError
			require.ErrorAs(t, err, &extractionErr)
			require.Equal(t, "AMAZON", extractionErr.Site)
		})
	}
}

func TestNewHTMLExtractorValidates(t *testing.T) {
	t.Parallel()

	_, err := NewHTMLExtractor(Recipe{}, &fakeFetcher{}, nil, nil)
	require.Error(t, err)
	_, err = NewHTMLExtractor(Recipe{Site: "X"}, nil, nil, nil)
	require.Error(t, err)
}
