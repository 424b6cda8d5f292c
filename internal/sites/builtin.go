package sites

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/datasheet-crawler/internal/datasheet"
	"github.com/JakeFAU/datasheet-crawler/internal/extract"
	"github.com/JakeFAU/datasheet-crawler/internal/logging"
)

// FetchMode selects how a site's pages are retrieved.
type FetchMode int

const (
	// FetchStatic uses a plain HTTP client.
	FetchStatic FetchMode = iota
	// FetchHeadless renders the page in a headless browser.
	FetchHeadless
	// FetchStealth renders the page in a browser with anti-detection patches.
	FetchStealth
)

func (m FetchMode) String() string {
	switch m {
	case FetchHeadless:
		return "headless"
	case FetchStealth:
		return "stealth"
	default:
		return "static"
	}
}

// Toolkit carries the shared collaborators of the built-in extractors.
// Nil Headless or Stealth fetchers fall back to Static.
type Toolkit struct {
	Static   datasheet.Fetcher
	Headless datasheet.Fetcher
	Stealth  datasheet.Fetcher
	Images   extract.ImageSaver
	// HTTPClient downloads datasheet PDFs.
	HTTPClient *http.Client
	PDF        extract.PDFConfig
	Logger     *zap.Logger
}

func (t Toolkit) fetcher(mode FetchMode) datasheet.Fetcher {
	switch mode {
	case FetchHeadless:
		if t.Headless != nil {
			return t.Headless
		}
	case FetchStealth:
		if t.Stealth != nil {
			return t.Stealth
		}
	}
	return t.Static
}

// SiteRecipe pairs a strategy key with its page recipe and fetch mode.
type SiteRecipe struct {
	Strategy string
	Mode     FetchMode
	Recipe   extract.Recipe
}

const amazonSpecFallbackKey = "Info"

// BuiltinRecipes returns the page recipes of every HTML-backed strategy.
func BuiltinRecipes() []SiteRecipe {
	tableRows := []string{"table tr"}
	return []SiteRecipe{
		{StrategyMercadoLivre, FetchStatic, extract.Recipe{
			Site:          "MERCADO_LIVRE",
			FallbackTitle: "Produto Mercado Livre",
			Title:         []string{"h1.ui-pdp-title"},
			Description:   []string{"p.ui-pdp-description__content", "div.ui-pdp-description"},
			Image:         []string{"figure.ui-pdp-gallery__figure img", "img.ui-pdp-image"},
			SpecRows:      []string{"tr.andes-table__row"},
		}},
		{StrategyAmazon, FetchHeadless, extract.Recipe{
			Site:          "AMAZON",
			FallbackTitle: "Produto Amazon",
			Title:         []string{"#productTitle"},
			Description:   []string{"#feature-bullets", "#productDescription"},
			Image:         []string{"#landingImage", "#imgTagWrapperId img"},
			SpecRows: []string{
				"table#productDetails_techSpec_section_1 tr",
				"table#productDetails_detailBullets_sections1 tr",
			},
			Blocked:      []string{"robot check", "digite os caracteres"},
			RequireTitle: true,
		}},
		{StrategyFujioka, FetchStatic, extract.Recipe{
			Site:          "FUJIOKA",
			FallbackTitle: "Produto Fujioka",
			Title:         []string{".productName", "h1"},
			Description:   []string{".productDescription"},
			Image:         []string{"img#image-main"},
			SpecRows:      []string{"tr"},
			SpecKey:       ".name-field",
			SpecValue:     ".value-field",
		}},
		{StrategyFrioPecas, FetchHeadless, extract.Recipe{
			Site:          "FRIOPECAS",
			FallbackTitle: "Produto Friopeças",
			Title:         []string{`[class*="productName"]`, "h1"},
			Description:   []string{`[class*="productDescriptionText"]`},
			Image:         []string{`img[class*="productImageTag--main"]`},
			SpecRows:      []string{"tr[data-specification-name]", "table tr"},
		}},
		{StrategyAgis, FetchStatic, extract.Recipe{
			Site:          "AGIS",
			FallbackTitle: "Produto Agis",
			Title:         []string{"h1.page-title span", "h1"},
			Description:   []string{"div.product.attribute.description div.value", "div.product.attribute.overview div.value"},
			Image:         []string{"img.fotorama__img", "img.gallery-placeholder__image"},
			SpecRows:      []string{"#product-attribute-specs-table tr", "div.additional-attributes tr"},
			TableFallback: true,
		}},
		{StrategyMagalu, FetchHeadless, extract.Recipe{
			Site:          "MAGALU",
			FallbackTitle: "Produto Magalu",
			Title:         []string{`h1[data-testid="heading-product-title"]`, "h1"},
			Description:   []string{`div[data-testid="product-description"]`, `[data-testid="rich-content-container"]`},
			Image:         []string{`img[data-testid="image-selected-thumbnail"]`},
			SpecRows:      tableRows,
		}},
		{StrategyMagaluEmpresas, FetchHeadless, extract.Recipe{
			Site:          "MAGALU_EMPRESAS",
			FallbackTitle: "Produto Magalu Empresas",
			Title:         []string{"h1"},
			Description:   []string{`div[data-testid*="description"]`},
			SpecRows:      tableRows,
		}},
		{StrategyPauta, FetchHeadless, extract.Recipe{
			Site:          "PAUTA",
			FallbackTitle: "Produto Pauta",
			Title:         []string{"h1.title", "h1"},
			Description:   []string{"div.description", "#description"},
			Image:         []string{"img#cloudZoomImage"},
			SpecRows:      []string{"table.features-list tr"},
		}},
		{StrategyIngramMicro, FetchStealth, extract.Recipe{
			Site:          "INGRAM_MICRO",
			FallbackTitle: "Produto Ingram Micro",
			Title:         []string{"h1", ".product-name"},
			Description:   []string{".product-description", "#overview"},
			SpecRows:      tableRows,
		}},
		{StrategyTambasa, FetchHeadless, extract.Recipe{
			Site:          "TAMBASA",
			FallbackTitle: "Produto Tambasa",
			Title:         []string{"h1.js-product-name-detail", "h1"},
			Description:   []string{"div.product-detail__descriptions-text"},
			Image:         []string{"img.js-product-detail__large-image"},
			SpecRows:      []string{"div.product-detail__attribute"},
			SpecKey:       "span.product-detail__attribute-title",
			SpecValue:     "span.product-detail__attribute-text",
		}},
		{StrategyFrigelar, FetchHeadless, extract.Recipe{
			Site:          "FRIGELAR",
			FallbackTitle: "Produto Frigelar",
			Title:         []string{"h1.product-name", "h1"},
			Description:   []string{"div.frigelar-product-description-section"},
			Image:         []string{"#prod-img-container img"},
			SpecRows:      tableRows,
		}},
		{StrategyFastShop, FetchHeadless, extract.Recipe{
			Site:          "FASTSHOP",
			FallbackTitle: "Produto Fast Shop",
			Title:         []string{"div[data-fs-product-title-header]", "h1"},
			Description:   []string{`div[data-testid="long-description-expanded"]`},
			Image:         []string{"img[data-fs-image]"},
			SpecRows:      tableRows,
		}},
		{StrategyOderco, FetchHeadless, extract.Recipe{
			Site:          "ODERCO",
			FallbackTitle: "Produto Oderco",
			Title:         []string{`h1.page-title span[data-ui-id="page-title-wrapper"]`, "h1"},
			Description:   []string{"div.product.attribute.description div.value"},
			Image:         []string{"img.fotorama__img"},
			SpecRows:      []string{"#additional-new tr", "div.additional-attributes tr", "div.additional-attributes li"},
			SpecKey:       "span.label, th",
			SpecValue:     "span.data, td",
		}},
		{StrategyMazer, FetchStatic, extract.Recipe{
			Site:          "MAZER",
			FallbackTitle: "Produto Mazer",
			Title:         []string{"h1.tt-produto-principal", "h1"},
			Description:   []string{".txt-detalhe-produto"},
			Image:         []string{"img#imgProduto", ".foto-produto img"},
			SpecTerms:     []string{"dl.lista-atributos dt"},
		}},
		{StrategyDutra, FetchStatic, extract.Recipe{
			Site:          "DUTRA",
			FallbackTitle: "Produto Dutra Máquinas",
			Title:         []string{"h1.titulo", "h1"},
			Description:   []string{"#descricao"},
			Image:         []string{"img.image-produto"},
			SpecRows:      []string{"table.dados-tecnicos-produto tr"},
		}},
		{StrategyRoute66, FetchStatic, extract.Recipe{
			Site:          "ROUTE66",
			FallbackTitle: "Produto Route 66",
			Title:         []string{"div.text-2xl.font-bold", "h1"},
			Description:   []string{"div.prose", "#description"},
			Image:         []string{`img[itemprop="thumbnail"]`},
			TableFallback: true,
		}},
		{StrategyLojaDoMecanico, FetchHeadless, extract.Recipe{
			Site:          "LOJADOMECANICO",
			FallbackTitle: "Produto Loja do Mecânico",
			Title:         []string{"h1.product-name", "h1"},
			Description:   []string{"div#descricao"},
			Image:         []string{"img.product-zoom"},
			SpecRows:      []string{"tr"},
			SpecKey:       "td.text-description",
			SpecValue:     "td.text-value",
		}},
		{StrategyVonder, FetchHeadless, extract.Recipe{
			Site:          "VONDER",
			FallbackTitle: "Produto Vonder",
			Title:         []string{"h1.nomeProduto", "h1"},
			Description:   []string{"div.descricaoProd"},
			Image:         []string{"img#imgProd1"},
			TableFallback: true,
		}},
		{StrategyMartins, FetchStatic, extract.Recipe{
			Site:          "MARTINS",
			FallbackTitle: "Produto Martins",
			Title:         []string{"h1"},
			Description:   []string{"div.pdp-row-product-content"},
			Image:         []string{`img[data-nimg="responsive"]`},
			TableFallback: true,
		}},
		{StrategyKalunga, FetchStatic, extract.Recipe{
			Site:          "KALUNGA",
			FallbackTitle: "Produto Kalunga",
			Title:         []string{"h1.headerprodutosinfos__title", "h1"},
			Description:   []string{"div#descricaoProduto", "div#descricao-produto"},
			Image:         []string{"img#imgProduct"},
			TableFallback: true,
		}},
		{StrategyQuaseTudo, FetchStatic, extract.Recipe{
			Site:          "QUASETUDO",
			FallbackTitle: "Produto Quase Tudo",
			Title:         []string{"h1.product_title", "h1"},
			Description:   []string{"div.post-content", "#tab-description"},
			Image:         []string{"img.wp-post-image"},
			SpecRows:      []string{"table.woocommerce-product-attributes tr"},
		}},
		{StrategyBHPhotoVideo, FetchStealth, extract.Recipe{
			Site:          "BHPHOTOVIDEO",
			FallbackTitle: "Produto B&H",
			Title:         []string{`h1[data-selenium="productTitle"]`, "h1"},
			Description:   []string{`div[data-selenium="overviewLongDescription"]`},
			Image:         []string{`img[data-selenium="inlineMediaMainImage"]`},
			SpecRows:      []string{`table[data-selenium="specsItemGroupTable"] tr`},
		}},
		{StrategyIntelbras, FetchStealth, extract.Recipe{
			Site:          "INTELBRAS",
			FallbackTitle: "Produto Intelbras",
			Title:         []string{`h1[class*="productNameContainer"]`, "h1"},
			Description:   []string{"div.intelbras-store-theme-4-x-description", `div[class*="productDescriptionText"]`},
			Image:         []string{`img[class*="productImageTag--main"]`},
			SpecRows:      []string{`tr[class*="specificationsTableRow"]`},
			SpecKey:       `td[class*="specificationItemProperty"]`,
			SpecValue:     `td[class*="specificationItemSpecifications"]`,
		}},
		{StrategyKabum, FetchStealth, extract.Recipe{
			Site:          "KABUM",
			FallbackTitle: "Produto Kabum",
			Title:         []string{"h1"},
			Description:   []string{"div#description", "#iframeContainer"},
			Image:         []string{"figure img", "img.iiz__img"},
			SpecRows:      []string{"#technicalInfoSection tr"},
			TableFallback: true,
		}},
		{StrategyDell, FetchStealth, extract.Recipe{
			Site:          "DELL",
			FallbackTitle: "Produto Dell",
			Title:         []string{"div.pg-title h1", "h1"},
			Description:   []string{"div.pd-features", "#overview"},
			Image:         []string{"img.hero-image", "#hero-image img"},
			SpecRows:      []string{"div.spec__item"},
			SpecKey:       "div.spec__item__title",
			SpecValue:     "div.spec__item__description, div.spec__item__value",
		}},
		{StrategyDimensional, FetchStatic, extract.Recipe{
			Site:          "DIMENSIONAL",
			FallbackTitle: "Produto Dimensional",
			Title:         []string{`[class*="productNameContainer"]`, "h1"},
			Description:   []string{`[class*="productDescriptionText"]`},
			Image:         []string{`img[class*="productImageTag--main"]`},
			SpecRows:      []string{`tr[class*="specificationsTableRow"]`},
			SpecKey:       `[class*="specificationsName"], td:first-child`,
			SpecValue:     `[class*="specificationsValue"], td:last-child`,
		}},
		{StrategyHayamax, FetchStatic, extract.Recipe{
			Site:          "HAYAMAX",
			FallbackTitle: "Produto Hayamax",
			Title:         []string{"h1#product-pid-title", "h1"},
			Description:   []string{"#product-description", "div.description"},
			Image:         []string{"img#product-image"},
			TableFallback: true,
		}},
		{StrategyWEG, FetchHeadless, extract.Recipe{
			Site:          "WEG",
			FallbackTitle: "Produto WEG",
			Title:         []string{"h1.product-card-title", "h1"},
			Description:   []string{"div.xtt-product-description"},
			Image:         []string{"div.col-sm-6 img"},
			SpecRows:      []string{"table.table tr"},
		}},
	}
}

// RegisterBuiltins binds every built-in strategy to a factory built from tk.
func RegisterBuiltins(reg *Registry, tk Toolkit) {
	logger := logging.OrNop(tk.Logger)
	for _, sr := range BuiltinRecipes() {
		sr := sr
		recipe := sr.Recipe
		recipe.CaptureImage = sr.Mode != FetchStatic
		reg.Register(sr.Strategy, func() (datasheet.Extractor, error) {
			ex, err := extract.NewHTMLExtractor(recipe, tk.fetcher(sr.Mode), tk.Images, logger)
			if err != nil {
				return nil, err
			}
			logger.Debug("extractor built", zap.String("strategy", sr.Strategy), zap.Stringer("mode", sr.Mode))
			switch sr.Strategy {
			case StrategyAmazon:
				return withSpecFallback(ex, amazonSpecFallbackKey, "Verificar descrição completa"), nil
			case StrategyIntelbras:
				pdfCfg := tk.PDF
				pdfCfg.Site = sr.Recipe.Site
				pdfCfg.FallbackTitle = "Produto Intelbras PDF"
				pdfCfg.NoiseMarkers = []string{"intelbras.com.br", "sujeitas a alteração"}
				return pdfAware(ex, extract.NewPDFExtractor(tk.HTTPClient, pdfCfg, logger)), nil
			}
			return ex, nil
		})
	}
}

// withSpecFallback adds a single placeholder row when the page had no specs.
func withSpecFallback(next datasheet.Extractor, key, value string) datasheet.Extractor {
	return datasheet.ExtractorFunc(func(ctx context.Context, rawURL, outputDir string) (datasheet.Product, error) {
		product, err := next.Extract(ctx, rawURL, outputDir)
		if err != nil {
			return product, err
		}
		if len(product.Attributes) == 0 {
			product.Attributes = []datasheet.Attribute{{Key: key, Value: value}}
		}
		return product, nil
	})
}

// pdfAware sends URLs whose path ends in .pdf to pdf and the rest to page.
func pdfAware(page, pdf datasheet.Extractor) datasheet.Extractor {
	return datasheet.ExtractorFunc(func(ctx context.Context, rawURL, outputDir string) (datasheet.Product, error) {
		if IsPDFURL(rawURL) {
			return pdf.Extract(ctx, rawURL, outputDir)
		}
		return page.Extract(ctx, rawURL, outputDir)
	})
}

// IsPDFURL reports whether rawURL points at a PDF document.
func IsPDFURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(rawURL), ".pdf")
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}
