package sites

// Strategy keys for the built-in extractors.
const (
	StrategyMercadoLivre   = "mercado_livre"
	StrategyAmazon         = "amazon"
	StrategyFujioka        = "fujioka"
	StrategyFrioPecas      = "friopecas"
	StrategyAgis           = "agis"
	StrategyMagalu         = "magalu"
	StrategyMagaluEmpresas = "magalu_empresas"
	StrategyPauta          = "pauta"
	StrategyIngramMicro    = "ingram_micro"
	StrategyTambasa        = "tambasa"
	StrategyFrigelar       = "frigelar"
	StrategyFastShop       = "fastshop"
	StrategyOderco         = "oderco"
	StrategyMazer          = "mazer"
	StrategyDutra          = "dutramaquinas"
	StrategyRoute66        = "route66"
	StrategyLojaDoMecanico = "lojadomecanico"
	StrategyVonder         = "vonder"
	StrategyMartins        = "martins"
	StrategyKalunga        = "kalunga"
	StrategyQuaseTudo      = "quasetudo"
	StrategyBHPhotoVideo   = "bhphotovideo"
	StrategyIntelbras      = "intelbras"
	StrategyKabum          = "kabum"
	StrategyDell           = "dell"
	StrategyDimensional    = "dimensional"
	StrategyHayamax        = "hayamax"
	StrategyWEG            = "weg"
)

// DefaultTable returns the built-in routing table. The first match wins.
func DefaultTable() []Definition {
	return []Definition{
		MustDefine("MERCADO_LIVRE", StrategyMercadoLivre, `mercadolivre\.com`, `produto\.mercadolivre`),
		MustDefine("AMAZON", StrategyAmazon, `amazon\.com`, `amzn\.to`),
		MustDefine("FUJIOKA", StrategyFujioka, `fujioka\.com`, `fujiokadistribuidor\.com`),
		MustDefine("FRIOPECAS", StrategyFrioPecas, `friopecas\.com\.br`),
		MustDefine("AGIS", StrategyAgis, `vendas\.agis\.com\.br`, `agis\.com\.br`),
		MustDefine("MAGALU", StrategyMagalu, `magazineluiza\.com\.br`, `magalu\.com`),
		MustDefine("MAGALU_EMPRESAS", StrategyMagaluEmpresas, `magaluempresas\.com\.br`),
		MustDefine("PAUTA", StrategyPauta, `pauta\.com\.br`),
		MustDefine("INGRAM_MICRO", StrategyIngramMicro, `ingrammicro\.com`),
		MustDefine("TAMBASA", StrategyTambasa, `tambasa\.com`, `loja\.tambasa`),
		MustDefine("FRIGELAR", StrategyFrigelar, `frigelar\.com\.br`),
		MustDefine("FASTSHOP", StrategyFastShop, `fastshop\.com\.br`, `site\.fastshop`),
		MustDefine("ODERCO", StrategyOderco, `oderco\.com\.br`),
		MustDefine("MAZER", StrategyMazer, `mazer\.com\.br`),
		MustDefine("DUTRA", StrategyDutra, `dutramaquinas\.com\.br`),
		MustDefine("ROUTE66", StrategyRoute66, `route66\.com\.br`),
		MustDefine("LOJADOMECANICO", StrategyLojaDoMecanico, `lojadomecanico\.com\.br`),
		MustDefine("VONDER", StrategyVonder, `vonder\.com\.br`),
		MustDefine("MARTINS", StrategyMartins, `martinsatacado\.com\.br`),
		MustDefine("KALUNGA", StrategyKalunga, `kalunga\.com\.br`),
		MustDefine("QUASETUDO", StrategyQuaseTudo, `quasetudodeinformatica\.com\.br`),
		MustDefine("BHPHOTOVIDEO", StrategyBHPhotoVideo, `bhphotovideo\.com`),
		MustDefine("INTELBRAS", StrategyIntelbras, `intelbras\.com`),
		MustDefine("KABUM", StrategyKabum, `kabum\.com\.br`),
		MustDefine("DELL", StrategyDell, `dell\.com`),
		MustDefine("DIMENSIONAL", StrategyDimensional, `dimensional\.com\.br`),
		MustDefine("HAYAMAX", StrategyHayamax, `hayamax\.com\.br`),
		MustDefine("WEG", StrategyWEG, `weg\.net`),
	}
}
