package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/hardware-store/internal/store"
	"github.com/tealeg/xlsx"
)

const dateLayout = "2006-01-02"

// accountingRange reads ?from=&to= as dates. to is inclusive; the default
// window is the current month so far.
func accountingRange(c *gin.Context, now time.Time) (time.Time, time.Time, error) {
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if s := c.Query("from"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, invalid("from", "from must be a date like 2024-01-31", "date")
		}
		from = t
	}
	if s := c.Query("to"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, now.Location())
		if err != nil {
			return time.Time{}, time.Time{}, invalid("to", "to must be a date like 2024-01-31", "date")
		}
		to = t
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, invalid("to", "to must not be before from", "gtefield")
	}

	return from, to.AddDate(0, 0, 1), nil
}

func (h *Handler) summary(c *gin.Context) (*store.AccountingSummary, error) {
	from, to, err := accountingRange(c, time.Now())
	if err != nil {
		return nil, err
	}
	return store.SummarizeAccounting(c.Request.Context(), h.db, from, to)
}

func (h *Handler) Accounting(c *gin.Context) {
	s, err := h.summary(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondOK(c, http.StatusOK, s)
}

func (h *Handler) ExportAccounting(c *gin.Context) {
	s, err := h.summary(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	file, err := buildLedger(s)
	if err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("ledger_%s_%s.xlsx", s.From.Format("20060102"), s.To.AddDate(0, 0, -1).Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Transfer-Encoding", "binary")
	c.Header("Expires", "0")
	c.Status(http.StatusOK)

	if err := file.Write(c.Writer); err != nil {
		h.fail(c, err)
	}
}

var ledgerHeaders = []string{"Entry", "Order", "Settled At", "Total", "Shipping", "Products"}

// buildLedger lays out one row per entry followed by a totals row.
func buildLedger(s *store.AccountingSummary) (*xlsx.File, error) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Ledger")
	if err != nil {
		return nil, fmt.Errorf("add ledger sheet: %w", err)
	}

	header := sheet.AddRow()
	for _, h := range ledgerHeaders {
		header.AddCell().SetValue(h)
	}

	for _, e := range s.Entries {
		row := sheet.AddRow()
		row.AddCell().SetValue(e.ID)
		row.AddCell().SetValue(e.OrderNumber)
		row.AddCell().SetValue(e.SettledAt.Format("2006-01-02 15:04:05"))
		row.AddCell().SetValue(e.TotalAmount.StringFixed(2))
		row.AddCell().SetValue(e.ShippingAmount.StringFixed(2))
		row.AddCell().SetValue(e.ProductAmount.StringFixed(2))
	}

	totals := sheet.AddRow()
	totals.AddCell().SetValue("Total")
	totals.AddCell().SetValue(fmt.Sprintf("%d orders", s.Count))
	totals.AddCell().SetValue("")
	totals.AddCell().SetValue(s.TotalAmount.StringFixed(2))
	totals.AddCell().SetValue(s.ShippingAmount.StringFixed(2))
	totals.AddCell().SetValue(s.ProductAmount.StringFixed(2))

	return file, nil
}
