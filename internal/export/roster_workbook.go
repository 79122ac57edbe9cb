package export

import (
	"bytes"
	"fmt"
	"strings"

	"badgewatch/internal/aggregator"
	"badgewatch/internal/metrics"
	"badgewatch/internal/models"

	"github.com/xuri/excelize/v2"
)

// RosterHeader column titles of the monthly roster sheet
var RosterHeader = []string{
	"Person ID",
	"Name",
	"Status",
	"Anomaly Score",
	"Isolation Forest",
	"Events",
	"Accepted",
	"Denied",
	"Denied %",
	"After-Hours %",
	"Weekend %",
	"New Location %",
	"Rapid Repeat %",
	"Rapid Badging",
	"Unique Devices",
	"Entropy (bits)",
	"Badged Days",
	"Last Event (UTC)",
	"Reasons",
}

var rosterColumnWidths = []float64{
	12, 22, 10, 14, 16, 9, 10, 9, 10, 13, 11, 15, 15, 14, 15, 14, 28, 22, 48,
}

// SheetName roster sheet title for a month
func SheetName(monthKey string) string {
	return "Roster " + monthKey
}

// MonthlyRosterWorkbook renders a month's roster as an xlsx file
func MonthlyRosterWorkbook(monthKey string, summaries []models.MonthlyPersonSummary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheetName := SheetName(monthKey)
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range RosterHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	for i, s := range summaries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		row := rosterRow(s)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row for %s: %w", s.PersonID, err)
		}
	}

	for col, width := range rosterColumnWidths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, width); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze header: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func rosterRow(s models.MonthlyPersonSummary) []interface{} {
	status := aggregator.MonthlyStatus(s)

	days := make([]string, len(s.BadgedDays))
	for i, d := range s.BadgedDays {
		days[i] = fmt.Sprint(d)
	}

	lastEvent := ""
	if !s.LastEventTimestamp.IsZero() {
		lastEvent = s.LastEventTimestamp.UTC().Format("2006-01-02 15:04:05")
	}

	return []interface{}{
		s.PersonID,
		s.Name,
		status.Label,
		metrics.Round(s.AnomalyScore, 2),
		metrics.Round(s.IsolationForestScore, 2),
		s.TotalEvents,
		s.AcceptedCount,
		s.DeniedCount,
		metrics.Round(s.DeniedRate, 2),
		metrics.Round(s.AfterHoursRate, 2),
		metrics.Round(s.WeekendRate, 2),
		metrics.Round(s.NewLocationRate, 2),
		metrics.Round(s.RapidRepeatRate, 2),
		s.RapidBadgingCount,
		s.UniqueDeviceCount,
		metrics.Round(s.ShannonEntropy, 2),
		strings.Join(days, ","),
		lastEvent,
		strings.Join(status.Reasons, "; "),
	}
}
