package repository

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/datagridint/slv-extractor/internal/models"
)

type csvCodec struct{}

func (csvCodec) write(w io.Writer, records []models.WideRecord, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(RecordHeader()); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(recordToRow(r, loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (csvCodec) read(path string, loc *time.Location) ([]models.WideRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	dec, err := newRowDecoder(header, loc)
	if err != nil {
		return nil, err
	}

	var records []models.WideRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		r, err := dec.decode(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, r)
	}
	return records, nil
}
