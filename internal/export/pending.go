package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"skolar/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Pending"

var headers = []string{
	"Local ID", "Tutor ID", "Tutor", "User ID", "Subject",
	"Scheduled (UTC)", "Notes", "Idempotency key", "Queued at (UTC)",
}

// PendingLister is the read side of the offline queue.
type PendingLister interface {
	ListPendingBookings(ctx context.Context) ([]models.PendingBooking, error)
}

// PendingExporter dumps the offline queue to an xlsx file.
type PendingExporter struct {
	store  PendingLister
	dir    string
	logger *zerolog.Logger
	now    func() time.Time
}

func NewPendingExporter(store PendingLister, dir string, logger *zerolog.Logger) *PendingExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &PendingExporter{store: store, dir: dir, logger: logger, now: time.Now}
}

// Export writes the current queue and returns the file path.
func (e *PendingExporter) Export(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	pending, err := e.store.ListPendingBookings(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing pending bookings: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	now := e.now().UTC()
	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Pending bookings: %d (exported %s)", len(pending), now.Format(time.RFC3339)))
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, p := range pending {
		row := []any{
			p.LocalID,
			p.TutorID,
			models.Deref(p.TutorName),
			p.UserID,
			p.Subject,
			p.ScheduledAt.UTC().Format(time.RFC3339),
			models.Deref(p.Notes),
			p.IdempotencyKey,
			p.CreatedAt.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return "", fmt.Errorf("error writing row %d: %w", i+3, err)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 10)
	_ = f.SetColWidth(sheetName, "B", lastCol, 22)
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("pending_%s.xlsx", now.Format("20060102_150405"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(pending)).Msg("Pending queue exported")
	return filePath, nil
}
