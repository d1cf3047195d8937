package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"restobook/internal/timegraph"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Расписание"

// ScheduleSource gives a detached copy of one operating day.
type ScheduleSource interface {
	Schedule(ctx context.Context, date time.Time) (*timegraph.DaySchedule, error)
}

// Exporter writes day schedules as xlsx: one row per table, one column per slot.
type Exporter struct {
	source ScheduleSource
	dir    string
	logger *zerolog.Logger
}

func New(source ScheduleSource, dir string, logger *zerolog.Logger) *Exporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Exporter{source: source, dir: dir, logger: logger}
}

// ExportDay saves the schedule of date into the export directory and returns the file path.
func (e *Exporter) ExportDay(ctx context.Context, date time.Time) (string, error) {
	// Создаем папку для экспорта, если не существует
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.BuildDay(ctx, date)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, fmt.Sprintf("schedule_%s.xlsx", date.Format("2006-01-02")))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

// BuildDay renders the schedule in memory. The caller closes the file.
func (e *Exporter) BuildDay(ctx context.Context, date time.Time) (*excelize.File, error) {
	schedule, err := e.source.Schedule(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("error getting schedule: %w", err)
	}
	return Render(schedule)
}

// Render lays a schedule out on a single sheet. Free slots stay empty, booked
// slots show the booking id and unconfirmed reservations are marked.
func Render(schedule *timegraph.DaySchedule) (*excelize.File, error) {
	f := excelize.NewFile()

	if _, err := f.NewSheet(sheetName); err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	_ = f.DeleteSheet("Sheet1")
	if index, err := f.GetSheetIndex(sheetName); err == nil {
		f.SetActiveSheet(index)
	}

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Расписание на %s (%s–%s)",
		schedule.Date.Format("02.01.2006"), schedule.Open.Format("15:04"), schedule.Close.Format("15:04")))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	tableStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	bookedStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#F8CBAD"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	reservedStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFE699"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	_ = f.SetCellValue(sheetName, "A2", "Стол")
	_ = f.SetCellStyle(sheetName, "A2", "A2", headerStyle)
	if len(schedule.Tables) > 0 {
		for i, s := range schedule.Tables[0].Slots {
			cell, _ := excelize.CoordinatesToCellName(i+2, 2)
			_ = f.SetCellValue(sheetName, cell, s.Time.String())
			_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
		}
	}

	for r, table := range schedule.Tables {
		row := r + 3
		cell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(sheetName, cell, fmt.Sprintf("№%d (%d)", table.TableNumber, table.Capacity))
		_ = f.SetCellStyle(sheetName, cell, cell, tableStyle)

		for i, s := range table.Slots {
			if s.Available {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+2, row)
			if s.Holder == timegraph.ReservedHolder {
				_ = f.SetCellValue(sheetName, cell, "резерв")
				_ = f.SetCellStyle(sheetName, cell, cell, reservedStyle)
				continue
			}
			_ = f.SetCellValue(sheetName, cell, strconv.FormatInt(s.Holder, 10))
			_ = f.SetCellStyle(sheetName, cell, cell, bookedStyle)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 14)
	if len(schedule.Tables) > 0 && len(schedule.Tables[0].Slots) > 0 {
		last, _ := excelize.ColumnNumberToName(len(schedule.Tables[0].Slots) + 1)
		_ = f.SetColWidth(sheetName, "B", last, 8)
	}
	_ = f.SetPanes(sheetName, &excelize.Panes{Freeze: true, XSplit: 1, YSplit: 2, TopLeftCell: "B3", ActivePane: "bottomRight"})

	return f, nil
}
