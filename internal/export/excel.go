package export

import (
	"context"
	"fmt"
	"io"
	"time"

	"konsult/internal/domain"
	"konsult/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Бронирования"

	statusSuccess = "✅"
	statusPending = "🔄"
	statusError   = "❌"
)

// ExcelExporter renders the booking calendar for a date range as an xlsx
// workbook: one row per consultant, one column per day.
type ExcelExporter struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewExcelExporter(repo domain.Repository, logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{repo: repo, logger: logger}
}

// WriteBookings собирает данные за период и пишет готовый файл в w.
func (e *ExcelExporter) WriteBookings(ctx context.Context, from, to time.Time, w io.Writer) error {
	if to.Before(from) {
		return fmt.Errorf("invalid range: %s after %s",
			from.Format(models.SlotDateFormat), to.Format(models.SlotDateFormat))
	}

	consultants, err := e.repo.ListActiveConsultants(ctx)
	if err != nil {
		return fmt.Errorf("error getting consultants: %v", err)
	}

	bookings, err := e.repo.GetBookingsByDateRange(ctx, from, to)
	if err != nil {
		return fmt.Errorf("error getting bookings: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))

	dateCols := e.writeDateHeaders(f, from, to)
	e.writeConsultantHeaders(f, consultants)
	e.writeBookingCells(f, consultants, bookings, dateCols)

	_ = f.SetColWidth(sheetName, "A", "A", 25)
	for i := 'B'; i <= 'Z'; i++ {
		_ = f.SetColWidth(sheetName, string(i), string(i), 20)
	}

	lastCol := lastColumnName(len(dateCols) + 1)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")

	style, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", style)

	_ = f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing file: %v", err)
	}

	e.logger.Info().
		Str("from", from.Format(models.SlotDateFormat)).
		Str("to", to.Format(models.SlotDateFormat)).
		Int("bookings", len(bookings)).
		Msg("Excel export written")
	return nil
}

// writeDateHeaders fills row 2 and returns date -> column index.
func (e *ExcelExporter) writeDateHeaders(f *excelize.File, from, to time.Time) map[string]int {
	col := 2
	current := from
	dateCols := make(map[string]int)

	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for !current.After(to) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(sheetName, cell, current.Format("02.01"))
		_ = f.SetCellStyle(sheetName, cell, cell, style)
		dateCols[current.Format(models.SlotDateFormat)] = col

		col++
		current = current.AddDate(0, 0, 1)
	}
	return dateCols
}

func (e *ExcelExporter) writeConsultantHeaders(f *excelize.File, consultants []*models.Consultant) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})

	row := 3
	for _, c := range consultants {
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("%s (%s)", c.Name, c.Timezone))
		_ = f.SetCellStyle(sheetName, cell, cell, style)
		row++
	}
}

func (e *ExcelExporter) writeBookingCells(
	f *excelize.File,
	consultants []*models.Consultant,
	bookings []*models.Booking,
	dateCols map[string]int,
) {
	// consultant id -> date -> bookings, in slot order (the query sorts).
	byCell := make(map[int64]map[string][]*models.Booking)
	for _, b := range bookings {
		if byCell[b.ConsultantID] == nil {
			byCell[b.ConsultantID] = make(map[string][]*models.Booking)
		}
		byCell[b.ConsultantID][b.SlotDate] = append(byCell[b.ConsultantID][b.SlotDate], b)
	}

	row := 3
	for _, c := range consultants {
		for dateKey, col := range dateCols {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			cellBookings := byCell[c.ID][dateKey]

			var cellValue string
			if len(cellBookings) > 0 {
				for _, b := range cellBookings {
					cellValue += fmt.Sprintf("%s %s (%d мин)\n",
						bookingStatusIcon(b.Status), b.SlotTime, b.DurationMinutes)
					if b.RescheduleCount > 0 {
						cellValue += "   🔁 перенесена\n"
					}
				}
			} else {
				cellValue = "Свободно"
			}

			_ = f.SetCellValue(sheetName, cell, cellValue)

			styleID, err := e.cellStyle(f, cellBookings)
			if err == nil {
				_ = f.SetCellStyle(sheetName, cell, cell, styleID)
			}
		}
		row++
	}
}

func bookingStatusIcon(status string) string {
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		return statusSuccess
	case models.StatusRescheduled:
		return statusPending
	case models.StatusCancelled:
		return statusError
	default:
		return "❓"
	}
}

// cellStyle: без заливки если пусто, желтый если есть переносы, зеленый
// если все подтверждены.
func (e *ExcelExporter) cellStyle(f *excelize.File, cellBookings []*models.Booking) (int, error) {
	wrap := &excelize.Alignment{Horizontal: "left", Vertical: "top", WrapText: true}

	active := 0
	hasRescheduled := false
	for _, b := range cellBookings {
		if b.Status == models.StatusCancelled {
			continue
		}
		active++
		if b.Status == models.StatusRescheduled {
			hasRescheduled = true
		}
	}

	if active == 0 {
		return f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFFFFF"}, Pattern: 1},
			Alignment: wrap,
		})
	}

	if hasRescheduled {
		return f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
			Alignment: wrap,
		})
	}

	return f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#C6EFCE"}, Pattern: 1},
		Alignment: wrap,
	})
}

// lastColumnName возвращает имя последней колонки для объединения ячеек
func lastColumnName(colCount int) string {
	if colCount <= 26 {
		return string(rune('A' + colCount - 1))
	}

	firstChar := string(rune('A' + (colCount-1)/26 - 1))
	secondChar := string(rune('A' + (colCount-1)%26))
	return firstChar + secondChar
}
