package jobs

import (
	"math"
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// DefaultCompetitivePrice is what the prices API reports when no
// competitive price applies.
const DefaultCompetitivePrice = 99999

func init() {
	registerDiscountsPrices()
}

func registerDiscountsPrices() {
	core.Register(core.JobDefinition{
		Info: core.JobInfo{
			Key:   "discounts_prices",
			Group: GroupPrices,
			Label: "Discounts and prices",
		},
		Sheet:     "Юнитка",
		HeaderRow: 1,
		StartRow:  2,
		Aliases: core.AliasTable{
			"nmID":               {"nmID", "Артикул WB"},
			"prices":             {"prices", "Цена продавца"},
			"discount":           {"discount", "Скидка продавца"},
			"discountedPrices":   {"discountedPrices", "Цена розничная"},
			"discountOnSite":     {"discountOnSite", "СПП"},
			"priceafterSPP":      {"priceafterSPP", "Цена после СПП"},
			"competitivePrice":   {"competitivePrice", "Привлекательная цена"},
			"isCompetitivePrice": {"isCompetitivePrice", "Статус привлекательной цены"},
			"hasPromotions":      {"hasPromotions", "Наличие промо"},
		},
		KeyFields: []core.FieldSpec{
			{Key: "nmID", Type: core.FieldNumeric, Required: true},
		},
		Fields: []core.FieldSpec{
			{Key: "prices", Type: core.FieldNumeric},
			{Key: "discount", Type: core.FieldPercent},
			{Key: "discountedPrices", Type: core.FieldNumeric},
			{Key: "discountOnSite", Type: core.FieldPercent},
			{Key: "priceafterSPP", Type: core.FieldNumeric},
			{Key: "competitivePrice", Type: core.FieldNumeric},
			{Key: "isCompetitivePrice", Type: core.FieldBool},
			{Key: "hasPromotions", Type: core.FieldBool},
		},
		Source: core.SourceSpec{
			Method: http.MethodPost,
			Path:   "/ns/dp-api/discounts-prices/suppliers/api/v1/list/goods/filter",
			Body: map[string]any{
				"facets":                        []any{},
				"filterWithoutPrice":            false,
				"filterWithLeftovers":           false,
				"filterWithoutCompetitivePrice": false,
				"sort":                          "price",
				"sortOrder":                     0,
			},
			Pagination:  core.PaginateOffset,
			PageSize:    50,
			RecordsPath: "data.listGoods",
		},
		Transform:     DiscountsTransform,
		PercentFormat: true,
		UpdateOnly:    true,
	})
}

// DiscountsTransform turns one listGoods item into the flat record written
// to the unit economics sheet.
func DiscountsTransform(rec core.Record) ([]core.Record, error) {
	nmID, ok := core.ParseNumber(rec["nmID"])
	if !ok {
		return nil, &core.RecordShapeError{Field: "nmID", Reason: "missing nmID"}
	}

	discounted := maxNumber(rec["discountedPrices"])
	spp, _ := core.ParseNumber(rec["discountOnSite"])
	discount, _ := core.ParseNumber(rec["discount"])

	competitive, ok := core.ParseNumber(rec["competitivePrice"])
	if !ok {
		competitive = DefaultCompetitivePrice
	}
	isCompetitive, _ := core.ParseBool(rec["isCompetitivePrice"])

	return []core.Record{{
		"nmID":               nmID,
		"vendorCode":         rec["vendorCode"],
		"prices":             maxNumber(rec["prices"]),
		"discount":           discount,
		"discountedPrices":   discounted,
		"discountOnSite":     spp,
		"priceafterSPP":      PriceAfterSPP(discounted, spp),
		"competitivePrice":   competitive,
		"isCompetitivePrice": isCompetitive,
		"hasPromotions":      len(asList(rec["promotions"])) > 0,
	}}, nil
}

// PriceAfterSPP applies the marketplace discount (percent) to a price,
// rounded to kopecks.
func PriceAfterSPP(price, spp float64) float64 {
	if spp <= 0 {
		return price
	}
	return math.Round(price*(1-spp/100)*100) / 100
}
