package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"legacymigrate/backend/internal/domain"
)

const (
	summarySheet = "Summary"
	errorsSheet  = "Errors"
)

// WriteErrors 把迁移任务的实体计数与错误列表导出为 XLSX，写入 w
//
// Summary 页为任务信息与各实体计数，Errors 页每行一条错误记录。
func WriteErrors(w io.Writer, p *domain.MigrationProgress) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return err
	}

	if err := writeSummary(f, p, bold); err != nil {
		return err
	}
	if err := writeErrorRows(f, p, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	_, err = f.WriteTo(w)
	return err
}

func writeSummary(f *excelize.File, p *domain.MigrationProgress, header int) error {
	info := [][]any{
		{"Migration", p.MigrationID},
		{"Tenant", p.TenantID},
		{"Source file", p.SourceFile},
		{"Status", string(p.Status)},
		{"Outcome", p.Outcome},
		{"Started", p.StartedAt.Format(time.RFC3339)},
		{"Completed", formatTime(p.CompletedAt)},
	}
	row := 1
	for _, values := range info {
		if err := setRow(f, summarySheet, row, values); err != nil {
			return err
		}
		row++
	}

	row++
	if err := setRow(f, summarySheet, row, []any{"Entity", "Total", "Migrated", "Skipped", "Errors", "Status"}); err != nil {
		return err
	}
	if err := styleRow(f, summarySheet, row, 6, header); err != nil {
		return err
	}
	for _, name := range domain.EntityOrder {
		e, ok := p.Entities[name]
		if !ok {
			continue
		}
		row++
		if err := setRow(f, summarySheet, row, []any{name, e.Total, e.Migrated, e.Skipped, e.Errors, string(e.Status)}); err != nil {
			return err
		}
	}
	return f.SetColWidth(summarySheet, "A", "B", 24)
}

func writeErrorRows(f *excelize.File, p *domain.MigrationProgress, header int) error {
	if err := setRow(f, errorsSheet, 1, []any{"Entity", "Source ID", "Message", "Timestamp"}); err != nil {
		return err
	}
	if err := styleRow(f, errorsSheet, 1, 4, header); err != nil {
		return err
	}
	for i, e := range p.Errors {
		values := []any{e.Entity, e.SourceID, e.Message, e.Timestamp.Format(time.RFC3339)}
		if err := setRow(f, errorsSheet, i+2, values); err != nil {
			return err
		}
	}
	if err := f.SetPanes(errorsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if err := f.SetColWidth(errorsSheet, "A", "B", 14); err != nil {
		return err
	}
	return f.SetColWidth(errorsSheet, "C", "C", 80)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// FileName 下载时使用的文件名
func FileName(p *domain.MigrationProgress) string {
	return fmt.Sprintf("migration-%s-errors.xlsx", p.MigrationID)
}
