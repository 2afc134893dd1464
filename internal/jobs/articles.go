package jobs

import (
	"net/http"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

func init() {
	registerSellerArticles()
}

func registerSellerArticles() {
	core.Register(core.JobDefinition{
		Info: core.JobInfo{
			Key:   "seller_articles",
			Group: GroupContent,
			Label: "Seller articles",
		},
		Sheet:     "Список артикулов",
		HeaderRow: 1,
		StartRow:  2,
		Aliases: core.AliasTable{
			"nmID":       {"Артикул", "Артикул WB", "nm id", "nmid", "nm"},
			"barcode":    {"barcode", "Баркод"},
			"vendorCode": {"Артикул продавца", "Артикул продаваца"},
			"size":       {"size", "Размер", "Размеры"},
		},
		KeyFields: []core.FieldSpec{
			{Key: "nmID", Type: core.FieldNumeric, Required: true},
			{Key: "barcode", Type: core.FieldString, Required: true},
		},
		Fields: []core.FieldSpec{
			{Key: "vendorCode", Type: core.FieldString},
			{Key: "size", Type: core.FieldString},
		},
		Source: core.SourceSpec{
			Method: http.MethodPost,
			Path:   "/content/v2/get/cards/list",
			Body: map[string]any{
				"settings": map[string]any{
					"filter": map[string]any{"withPhoto": -1},
				},
			},
			Pagination:  core.PaginateCursor,
			PageSize:    100,
			LimitParam:  "settings.cursor.limit",
			CursorParam: "settings.cursor",
			RecordsPath: "cards",
			CursorPath:  "cursor",
		},
		Transform:   ArticlesTransform,
		MarkAppends: true,
	})
}

// ArticlesTransform emits one record per barcode of a content card.
func ArticlesTransform(rec core.Record) ([]core.Record, error) {
	nmID, ok := core.ParseNumber(rec["nmID"])
	if !ok {
		return nil, &core.RecordShapeError{Field: "nmID", Reason: "missing nmID"}
	}
	vendor := core.CellString(rec["vendorCode"])

	var out []core.Record
	for _, s := range asList(rec["sizes"]) {
		size := asMap(s)
		if size == nil {
			continue
		}
		label := core.CellString(size["techSize"])
		if label == "" {
			label = core.CellString(size["wbSize"])
		}
		for _, sku := range asList(size["skus"]) {
			barcode := core.CellString(sku)
			if barcode == "" {
				continue
			}
			out = append(out, core.Record{
				"nmID":       nmID,
				"barcode":    barcode,
				"vendorCode": vendor,
				"size":       label,
			})
		}
	}
	return out, nil
}
