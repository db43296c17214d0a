package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/utils"
)

type StockMovementReportRow struct {
	EntryId         string    `json:"entryId"`
	CreatedAt       time.Time `json:"createdAt"`
	ProductName     string    `json:"productName"`
	ProductSku      string    `json:"productSku"`
	Location        string    `json:"location"`
	Reason          string    `json:"reason"`
	Quantity        int       `json:"quantity"`
	ResultingQty    int       `json:"resultingQty"`
	OrderNumber     *string   `json:"orderNumber,omitempty"`
	InventoryUnitId int       `json:"inventoryUnitId"`
}

// GetStockMovementReport lists ledger entries over a period, joined to
// product and order context, newest first.
func GetStockMovementReport(ctx context.Context, fromDate time.Time, toDate time.Time, unitId *int) ([]*StockMovementReportRow, error) {

	sqlT := `
SELECT
    sle.id AS entry_id,
    sle.created_at,
    p.name AS product_name,
    p.sku AS product_sku,
    iu.location,
    sle.reason,
    sle.quantity,
    sle.resulting_qty,
    o.order_number,
    sle.inventory_unit_id
FROM stock_ledger_entries sle
    LEFT JOIN inventory_units iu ON iu.id = sle.inventory_unit_id
    LEFT JOIN products p ON p.id = iu.product_id
    LEFT JOIN orders o ON o.id = sle.order_id
WHERE sle.owner_id = @ownerId
  AND sle.created_at >= @fromDate
  AND sle.created_at < @toDate
  {{- if .unitId }} AND sle.inventory_unit_id = @unitId {{- end }}
ORDER BY sle.created_at DESC, sle.sequence_no DESC;
`

	ownerId, ok := utils.GetOwnerIdFromContext(ctx)
	if !ok || ownerId == "" {
		return nil, errors.New("owner id is required")
	}

	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"unitId": utils.DereferencePtr(unitId),
	})
	if err != nil {
		return nil, err
	}

	var results []*StockMovementReportRow
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{
		"ownerId":  ownerId,
		"fromDate": fromDate,
		"toDate":   toDate,
		"unitId":   utils.DereferencePtr(unitId),
	}).Scan(&results).Error; err != nil {
		return nil, err
	}

	return results, nil
}

// ExportStockMovementXlsx streams the report as an xlsx attachment.
func ExportStockMovementXlsx(ctx context.Context, w http.ResponseWriter, fromDate time.Time, toDate time.Time, unitId *int) error {

	data, err := GetStockMovementReport(ctx, fromDate, toDate, unitId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	sheet := "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}

	// Add headers
	f.SetCellValue(sheet, "A1", "Date")
	f.SetCellValue(sheet, "B1", "Product")
	f.SetCellValue(sheet, "C1", "SKU")
	f.SetCellValue(sheet, "D1", "Location")
	f.SetCellValue(sheet, "E1", "Reason")
	f.SetCellValue(sheet, "F1", "Quantity")
	f.SetCellValue(sheet, "G1", "ResultingQty")
	f.SetCellValue(sheet, "H1", "OrderNumber")

	// Add data
	for i, d := range data {
		row := fmt.Sprint(i + 2)
		f.SetCellValue(sheet, "A"+row, d.CreatedAt.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheet, "B"+row, d.ProductName)
		f.SetCellValue(sheet, "C"+row, d.ProductSku)
		f.SetCellValue(sheet, "D"+row, d.Location)
		f.SetCellValue(sheet, "E"+row, d.Reason)
		f.SetCellValue(sheet, "F"+row, d.Quantity)
		f.SetCellValue(sheet, "G"+row, d.ResultingQty)
		f.SetCellValue(sheet, "H"+row, utils.DereferencePtr(d.OrderNumber, ""))
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=stock-movements.xlsx")
	return f.Write(w)
}
