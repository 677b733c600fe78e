package exports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/blok13/clanportal/internal/models"
)

// Sheet names of a roster workbook.
const (
	SheetParticipants = "Participants"
	SheetWaitlist     = "Waitlist"
	SheetApplications = "Applications"
)

const timeLayout = "2006-01-02 15:04:05"

// BuildWorkbook renders a feed as an XLSX workbook with one sheet per list.
func BuildWorkbook(feed *models.EventFeed) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetParticipants); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetWaitlist, SheetApplications} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %q: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	participants := make([][]any, 0, len(feed.Participants))
	for _, p := range feed.Participants {
		participants = append(participants, snapshotRow(p.UserID.String(), p.Profile, p.JoinedAt))
	}
	if err := writeSheet(f, SheetParticipants, header("Joined at"), participants, bold); err != nil {
		return nil, err
	}

	waitlist := make([][]any, 0, len(feed.Waitlist))
	for _, w := range feed.Waitlist {
		waitlist = append(waitlist, snapshotRow(w.UserID.String(), w.Profile, w.CreatedAt))
	}
	if err := writeSheet(f, SheetWaitlist, header("Queued at"), waitlist, bold); err != nil {
		return nil, err
	}

	applications := make([][]any, 0, len(feed.Applications))
	for _, a := range feed.Applications {
		row := snapshotRow(a.UserID.String(), a.Profile, a.CreatedAt)
		applications = append(applications, append(row, string(a.Status)))
	}
	if err := writeSheet(f, SheetApplications, append(header("Applied at"), "Status"), applications, bold); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func header(timeColumn string) []any {
	cols := []any{"#", "Display name", "User ID"}
	for _, k := range models.StatKeys {
		cols = append(cols, k)
	}
	return append(cols, timeColumn)
}

func snapshotRow(userID string, s models.Snapshot, at time.Time) []any {
	row := []any{0, s.DisplayName, userID}
	for _, k := range models.StatKeys {
		row = append(row, s.Stats.Get(k))
	}
	return append(row, at.UTC().Format(timeLayout))
}

func writeSheet(f *excelize.File, sheet string, head []any, rows [][]any, headStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &head); err != nil {
		return fmt.Errorf("%s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(head), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headStyle); err != nil {
		return fmt.Errorf("%s header style: %w", sheet, err)
	}
	for i, row := range rows {
		row[0] = i + 1
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, axis, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}
