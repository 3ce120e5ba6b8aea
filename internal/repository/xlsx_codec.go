package repository

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/datagridint/slv-extractor/internal/models"
)

const xlsxSheetName = "Readings"

type xlsxCodec struct{}

func (xlsxCodec) write(w io.Writer, records []models.WideRecord, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(xlsxSheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	// 删除默认的 Sheet1
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	if index, err := f.GetSheetIndex(xlsxSheetName); err == nil {
		f.SetActiveSheet(index)
	}

	header := RecordHeader()
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(xlsxSheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		row := []interface{}{
			r.GeoZoneNamesPath,
			r.DeviceName,
			formatTime(r.EventTime, loc),
			formatTime(r.UpdateTime, loc),
		}
		for _, m := range models.TrackedMetrics {
			if v, ok := r.Value(m); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		if err := f.SetSheetRow(xlsxSheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 时间列和位置列加宽，方便在 Excel 中查看
	if err := f.SetColWidth(xlsxSheetName, "A", "A", 30); err != nil {
		return err
	}
	if err := f.SetColWidth(xlsxSheetName, "C", "D", 20); err != nil {
		return err
	}

	return f.Write(w)
}

func (xlsxCodec) read(path string, loc *time.Location) ([]models.WideRecord, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := f.GetRows(xlsxSheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	dec, err := newRowDecoder(rows[0], loc)
	if err != nil {
		return nil, err
	}

	records := make([]models.WideRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		r, err := dec.decode(row)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", strconv.Itoa(i+2), err)
		}
		records = append(records, r)
	}
	return records, nil
}
