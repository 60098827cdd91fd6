package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"tezgahpos/internal/report"
)

// Report endpoints answer JSON by default and stream an xlsx workbook when
// format=xlsx is requested.

func (a *API) handleProductSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query, err := saleQueryFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	categoryID := parseID(r.URL.Query().Get("category_id"))

	rows, err := a.service.ProductSalesReport(r.Context(), query, categoryID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if wantsWorkbook(r) {
		serveWorkbook(w, "product-sales", func() error {
			return report.WriteProductSales(w, rows)
		}, a)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	categoryID := parseID(r.URL.Query().Get("category_id"))

	rows, total, err := a.service.InventoryReport(r.Context(), categoryID)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if wantsWorkbook(r) {
		serveWorkbook(w, "inventory", func() error {
			return report.WriteInventory(w, rows)
		}, a)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows, "total_value": total})
}

func (a *API) handleDailySalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	query, err := saleQueryFromURL(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rows, err := a.service.DailySalesReport(r.Context(), query)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}

	if wantsWorkbook(r) {
		serveWorkbook(w, "daily-sales", func() error {
			return report.WriteDailySales(w, rows)
		}, a)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}

func wantsWorkbook(r *http.Request) bool {
	return strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "xlsx")
}

// serveWorkbook sets download headers before calling write, which streams
// the workbook straight into the response. Failures mid-stream can only be
// logged since the header is already out.
func serveWorkbook(w http.ResponseWriter, name string, write func() error, a *API) {
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := write(); err != nil {
		a.logger.WithError(err).Error("workbook export failed")
	}
}
