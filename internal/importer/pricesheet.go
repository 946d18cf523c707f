package importer

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Price sheet columns, matched case-insensitively against the header row.
const (
	ColMaterial    = "material"
	ColPrice       = "price"
	ColUnit        = "unit"
	ColCategory    = "category"
	ColDescription = "description"
	ColPriority    = "priority"
)

// RowError describes a sheet row that could not be read.
type RowError struct {
	Row int    `json:"row"` // 1-based, as shown in the spreadsheet
	Err string `json:"error"`
}

// PriceSheet is the parsed content of a workbook.
type PriceSheet struct {
	Sheet     string
	Materials []*storage.Material
	Skipped   []RowError
}

// ReadPriceSheet parses the named sheet, or the first sheet when name is
// empty. The first row must be a header containing at least a Material column.
// Blank rows are ignored; rows with an unreadable price are reported in Skipped.
func ReadPriceSheet(r io.Reader, name string) (*PriceSheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	if name == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		name = sheets[0]
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", name)
	}

	cols := headerIndex(rows[0])
	if _, ok := cols[ColMaterial]; !ok {
		return nil, fmt.Errorf("sheet %q: missing %q column", name, ColMaterial)
	}

	sheet := &PriceSheet{Sheet: name}
	for i, row := range rows[1:] {
		rowNum := i + 2
		cell := func(col string) string {
			idx, ok := cols[col]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		materialName := cell(ColMaterial)
		if materialName == "" {
			continue
		}

		m := &storage.Material{
			MaterialName: materialName,
			Description:  cell(ColDescription),
			Category:     cell(ColCategory),
			PriceUnit:    cell(ColUnit),
			Active:       true,
		}

		price, err := parsePrice(cell(ColPrice))
		if err != nil {
			sheet.Skipped = append(sheet.Skipped, RowError{Row: rowNum, Err: err.Error()})
			continue
		}
		m.CurrentPrice = price

		if p := cell(ColPriority); p != "" {
			n, err := strconv.Atoi(p)
			if err != nil {
				sheet.Skipped = append(sheet.Skipped, RowError{Row: rowNum, Err: fmt.Sprintf("invalid priority %q", p)})
				continue
			}
			m.Priority = n
		}

		sheet.Materials = append(sheet.Materials, m)
	}

	return sheet, nil
}

// ImportMaterials upserts materials by name. onRow, when set, is called after every row.
func ImportMaterials(ctx context.Context, db storage.DB, materials []*storage.Material, onRow func()) (*Summary, error) {
	repo := storage.NewMaterialRepository(db)
	s := &Summary{}
	for _, m := range materials {
		created, err := repo.Upsert(ctx, m)
		if err != nil {
			return s, fmt.Errorf("material %q: %w", m.MaterialName, err)
		}
		if created {
			s.MaterialsCreated++
		} else {
			s.MaterialsUpdated++
		}
		if onRow != nil {
			onRow()
		}
	}
	return s, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := cols[key]; !dup && key != "" {
			cols[key] = i
		}
	}
	return cols
}

// parsePrice accepts "1.25", "$1.25" and "1,250.00". An empty cell is no price.
func parsePrice(s string) (*float64, error) {
	s = strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(s))
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return nil, fmt.Errorf("invalid price %q", s)
	}
	return &v, nil
}
