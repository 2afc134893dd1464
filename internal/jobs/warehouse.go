package jobs

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/sheetsync/internal/core"
)

// Pseudo-warehouses the remains report mixes in with real ones.
const (
	inWayToRecipients = "В пути до получателей"
	inWayReturns      = "В пути возвраты на склад WB"
	totalOnWarehouses = "Всего находится на складах"
)

func init() {
	registerWarehouseRemains()
}

func registerWarehouseRemains() {
	core.Register(core.JobDefinition{
		Info: core.JobInfo{
			Key:   "warehouse_remains",
			Group: GroupAnalytics,
			Label: "Warehouse remains",
		},
		Sheet:     "Остатки",
		HeaderRow: 1,
		StartRow:  2,
		Aliases: core.AliasTable{
			"barcode":              {"barcode", "Баркод"},
			"nmID":                 {"nmID", "Артикул WB"},
			"vendorCode":           {"vendorCode", "Артикул продавца"},
			"in_way_to_recipients": {inWayToRecipients},
			"in_way_returns":       {inWayReturns},
			"total":                {"Итого по складам"},
		},
		KeyFields: []core.FieldSpec{
			{Key: "barcode", Type: core.FieldString, Required: true},
		},
		Fields: []core.FieldSpec{
			{Key: "in_way_to_recipients", Type: core.FieldNumeric},
			{Key: "in_way_returns", Type: core.FieldNumeric},
			{Key: "total", Type: core.FieldNumeric},
		},
		Source: core.SourceSpec{
			Method:     http.MethodGet,
			Path:       "/api/v1/warehouse_remains",
			Query:      map[string]string{"groupByBarcode": "true", "groupBySa": "true", "groupByNm": "true"},
			Pagination: core.PaginateNone,
		},
		Transform:   WarehouseTransform,
		MarkAppends: true,
	})
}

// WarehouseTransform flattens the warehouses list of one report row. Every
// real warehouse becomes a field named after it, so a jobs file can track
// individual warehouses by listing their names as fields.
func WarehouseTransform(rec core.Record) ([]core.Record, error) {
	barcode := core.CellString(rec["barcode"])
	if barcode == "" {
		return nil, &core.RecordShapeError{Field: "barcode", Reason: "missing barcode"}
	}

	out := core.Record{
		"barcode":              barcode,
		"nmID":                 rec["nmId"],
		"vendorCode":           rec["vendorCode"],
		"in_way_to_recipients": 0.0,
		"in_way_returns":       0.0,
	}
	if nm, ok := firstNumber(rec["nmID"], rec["nmId"]); ok {
		out["nmID"] = nm
	}

	var total float64
	for _, w := range asList(rec["warehouses"]) {
		wh := asMap(w)
		name := strings.TrimSpace(core.CellString(wh["warehouseName"]))
		qty, ok := core.ParseNumber(wh["quantity"])
		if name == "" || !ok {
			continue
		}
		switch name {
		case inWayToRecipients:
			out["in_way_to_recipients"] = qty
		case inWayReturns:
			out["in_way_returns"] = qty
		case totalOnWarehouses:
		default:
			out[name] = qty
			total += qty
		}
	}
	out["total"] = total
	return []core.Record{out}, nil
}
