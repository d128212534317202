package extract

import "fmt"

// Catalog page locators.
var (
	CardLinks = X(
		`//article/div/a`,
		`//a[contains(@class, "product-card__link")]`,
	).Attr("href")

	NextPage = X(
		`//*[@class="pagination-next pagination__next j-next-page"]`,
		`//a[contains(@class, "pagination-next")]`,
	)
)

// Product page locators.
var (
	ArticleID = X(
		`//*[@id="productNmId"]`,
		labelCell("Артикул"),
	)
	Brand = X(
		`//*[@class="product-page__header"]/a`,
		`//a[contains(@class, "product-page__header-brand")]`,
	)
	Name = X(
		`//*[@class="product-page__header"]/h1`,
		`//h1[contains(@class, "product-page__title")]`,
	)
	Price = X(
		`//*[@id="b88bf175-c0d2-fec2-0220-3447970e41fa"]/div[3]/div[2]/div/div/div/div/p/span/ins`,
		`//ins[contains(@class, "price-block__final-price")]`,
		`//span[contains(@class, "price-block__wallet-price")]`,
	)

	// DetailsButton opens the popup with the full characteristics table.
	DetailsButton = X(
		`//button[contains(text(), "Все характеристики и описание")]`,
		`//button[contains(@class, "product-page__btn-detail")]`,
	)
	// DetailsPopup scopes the label lookups of the details fields.
	DetailsPopup = X(
		`//div[contains(@class, "popup-product-details")]`,
		`/html/body/div[1]/div`,
	)
)

// Details popup locators. Label-based cells come first; the positional
// table paths match the older popup layout.
var (
	Color          = X(labelCell("Цвет"), popupCell(1, 0))
	DiaperType     = X(labelCell("Тип подгузников"), popupCell(3, 1))
	UnitCount      = X(labelCell("Количество предметов"), popupCell(2, 0))
	WeightCategory = X(labelCell("Весовая группа"), popupCell(3, 2))
	Country        = X(labelCell("Страна производства"), popupCell(3, 4))
	PackageLength  = X(labelCell("Длина упаковки"), popupCell(4, 1))
	PackageHeight  = X(labelCell("Высота упаковки"), popupCell(4, 2))
	PackageWidth   = X(labelCell("Ширина упаковки"), popupCell(4, 3))
	Description    = X(
		`.//section[contains(@class, "product-details__description")]//p`,
		`/html/body/div[1]/div/div[1]/section/p`,
	)
)

// Review locators. Expressions starting with "." are relative to one review node.
var (
	ReviewsButton = X(
		`//a[contains(@class, "comments__btn-all") and @data-see-all="true"]`,
		`//a[contains(@class, "comments__btn-all")]`,
	)
	ReviewNodes = X(
		`//ul[@class="comments__list"]/li`,
		`//ul[contains(@class, "comments__list")]/li`,
		`//li[contains(@class, "comments__item")]`,
	)
	PhotoItems = X(
		`.//ul[@class="feedback__photos j-feedback-photos-scroll"]/li`,
		`.//ul[contains(@class, "feedback__photos")]/li`,
	)
	PhotoImage = Locators{
		{XPath: `.//img`, Attr: "src"},
		{XPath: `.//img`, Attr: "data-src"},
	}
	// standard account first, premium account second
	Author = X(
		`.//div/div[2]/div/p`,
		`.//div/div[2]/div/div/p`,
		`.//p[contains(@class, "feedback__header")]`,
	)
	ReviewDate = X(
		`.//div[@class="feedback__date"]`,
		`.//*[contains(@class, "feedback__date")]`,
	).Attr("content")
	Rating = X(
		`.//span[contains(@class, "stars-line")]`,
	).Attr("class")
	Pros     = X(`.//p/span[@class="feedback__text--item feedback__text--item-pro"]`)
	Cons     = X(`.//p/span[@class="feedback__text--item feedback__text--item-con"]`)
	Comments = X(`.//p/span[@class="feedback__text--item"]`)
)

// Product gallery locators.
var (
	GalleryButton = X(
		`//*[@class="comments__user-opinion-right hide-mobile"]/button`,
		`//button[contains(@class, "comments__user-opinion-btn")]`,
	)
	GalleryPopup = X(
		`//div[contains(@class, "popup-photos")]`,
		`/html/body/div[1]/div`,
	)
)

// labelCell is relative so it can be scoped to a popup node.
func labelCell(label string) string {
	return fmt.Sprintf(`.//table//tr[th[contains(normalize-space(.), "%s")]]/td`, label)
}

// popupCell addresses the older popup layout by table and row position.
// row 0 selects the single row of a one-row table.
func popupCell(table, row int) string {
	if row == 0 {
		return fmt.Sprintf(`/html/body/div[1]/div/div[1]/div[2]/table[%d]/tbody/tr/td/span`, table)
	}
	return fmt.Sprintf(`/html/body/div[1]/div/div[1]/div[2]/table[%d]/tbody/tr[%d]/td/span`, table, row)
}
