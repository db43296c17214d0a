package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

type SalesByProductRow struct {
	ProductName string          `json:"productName"`
	ProductSku  string          `json:"productSku"`
	UnitsSold   int             `json:"unitsSold"`
	UnitsShort  int             `json:"unitsShort"` // requested but never allocated
	GrossSales  decimal.Decimal `json:"grossSales"`
	Discounts   decimal.Decimal `json:"discounts"`
	NetSales    decimal.Decimal `json:"netSales"`
}

// GetSalesByProductReport aggregates order lines over a period. Cancelled
// and returned orders are excluded from sales figures.
func GetSalesByProductReport(ctx context.Context, fromDate time.Time, toDate time.Time) ([]*SalesByProductRow, error) {

	sql := `
SELECT
    ol.product_name,
    ol.product_sku,
    SUM(ol.quantity) AS units_sold,
    SUM(ol.quantity - ol.allocated_quantity) AS units_short,
    SUM(ol.unit_price * ol.quantity) AS gross_sales,
    SUM(ol.discount_amount) AS discounts,
    SUM(ol.total_price) AS net_sales
FROM order_lines ol
    INNER JOIN orders o ON o.id = ol.order_id
WHERE o.owner_id = @ownerId
  AND o.status NOT IN ('cancelled', 'returned')
  AND o.created_at >= @fromDate
  AND o.created_at < @toDate
GROUP BY ol.product_id, ol.product_name, ol.product_sku
ORDER BY net_sales DESC;
`

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	var results []*SalesByProductRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"ownerId":  ownerId,
		"fromDate": fromDate,
		"toDate":   toDate,
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

func ExportSalesByProductXlsx(ctx context.Context, w http.ResponseWriter, fromDate time.Time, toDate time.Time) error {

	data, err := GetSalesByProductReport(ctx, fromDate, toDate)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	f.SetCellValue(sheet, "A1", "Product")
	f.SetCellValue(sheet, "B1", "SKU")
	f.SetCellValue(sheet, "C1", "UnitsSold")
	f.SetCellValue(sheet, "D1", "GrossSales")
	f.SetCellValue(sheet, "E1", "Discounts")
	f.SetCellValue(sheet, "F1", "NetSales")

	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.ProductName)
		f.SetCellValue(sheet, "B"+row, d.ProductSku)
		f.SetCellValue(sheet, "C"+row, d.UnitsSold)
		f.SetCellValue(sheet, "D"+row, d.GrossSales.String())
		f.SetCellValue(sheet, "E"+row, d.Discounts.String())
		f.SetCellValue(sheet, "F"+row, d.NetSales.String())
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=sales-by-product.xlsx")
	return f.Write(w)
}
