package csv

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// Header rows expected by the loader
var (
	PartsHeader = []string{"part_number", "description", "is_template", "variant_of", "assembly", "trackable", "default_expiry_days"}
	BOMHeader   = []string{"assembly", "sub_part", "quantity", "reference", "overage", "consumable", "inherited", "optional", "substitutes", "note"}
	StockHeader = []string{"part_number", "quantity", "serial", "batch", "location", "status", "receipt_date", "expiry_date"}
)

const dateLayout = "2006-01-02"

// Loader handles loading parts, BOM lines and stock from CSV files
type Loader struct{}

// NewLoader creates a new CSV loader
func NewLoader() *Loader {
	return &Loader{}
}

// LoadParts loads parts from a CSV file
func (l *Loader) LoadParts(filename string) ([]*entities.Part, error) {
	records, err := readFile(filename, "parts", PartsHeader)
	if err != nil {
		return nil, err
	}

	parts := make([]*entities.Part, 0, len(records))
	for i, record := range records {
		part, err := parsePart(record)
		if err != nil {
			return nil, fmt.Errorf("parts CSV row %d: %w", i+2, err)
		}
		parts = append(parts, part)
	}
	return parts, nil
}

// LoadBOM loads BOM lines from a CSV file. Substitutes are separated by semicolons.
func (l *Loader) LoadBOM(filename string) ([]*entities.BOMLine, error) {
	records, err := readFile(filename, "BOM", BOMHeader)
	if err != nil {
		return nil, err
	}

	lines := make([]*entities.BOMLine, 0, len(records))
	for i, record := range records {
		line, err := parseBOMLine(record)
		if err != nil {
			return nil, fmt.Errorf("BOM CSV row %d: %w", i+2, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// LoadStock loads stock items from a CSV file
func (l *Loader) LoadStock(filename string) ([]*entities.StockItem, error) {
	records, err := readFile(filename, "stock", StockHeader)
	if err != nil {
		return nil, err
	}

	items := make([]*entities.StockItem, 0, len(records))
	for i, record := range records {
		item, err := parseStockItem(record)
		if err != nil {
			return nil, fmt.Errorf("stock CSV row %d: %w", i+2, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func readFile(filename, kind string, expectedHeader []string) ([][]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file %s: %w", kind, filename, err)
	}
	defer file.Close()

	return readRecords(file, kind, expectedHeader)
}

// readRecords checks the header and column count and returns the data rows
func readRecords(r io.Reader, kind string, expectedHeader []string) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s CSV: %w", kind, err)
	}

	if len(records) < 1 {
		return nil, fmt.Errorf("%s CSV must have a header row", kind)
	}

	header := records[0]
	if !validateHeader(header, expectedHeader) {
		return nil, fmt.Errorf("%s CSV header mismatch. Expected: %v, Got: %v", kind, expectedHeader, header)
	}

	rows := records[1:]
	for i, record := range rows {
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("%s CSV row %d: expected %d columns, got %d", kind, i+2, len(expectedHeader), len(record))
		}
	}
	return rows, nil
}

// Helper functions for parsing CSV records

func validateHeader(actual, expected []string) bool {
	if len(actual) != len(expected) {
		return false
	}

	for i, col := range expected {
		if strings.ToLower(strings.TrimSpace(actual[i])) != col {
			return false
		}
	}

	return true
}

func parsePart(record []string) (*entities.Part, error) {
	part, err := entities.NewPart(entities.PartNumber(strings.TrimSpace(record[0])), record[1], entities.PartNumber(strings.TrimSpace(record[3])))
	if err != nil {
		return nil, err
	}

	if part.IsTemplate, err = parseBool(record[2], "is_template"); err != nil {
		return nil, err
	}
	if part.Assembly, err = parseBool(record[4], "assembly"); err != nil {
		return nil, err
	}
	if part.Trackable, err = parseBool(record[5], "trackable"); err != nil {
		return nil, err
	}

	if s := strings.TrimSpace(record[6]); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("invalid default_expiry_days: %s", record[6])
		}
		part.DefaultExpiryDays = days
	}

	return part, nil
}

func parseBOMLine(record []string) (*entities.BOMLine, error) {
	quantity, err := decimal.NewFromString(strings.TrimSpace(record[2]))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %s", record[2])
	}

	line, err := entities.NewBOMLine(
		entities.PartNumber(strings.TrimSpace(record[0])),
		entities.PartNumber(strings.TrimSpace(record[1])),
		quantity,
	)
	if err != nil {
		return nil, err
	}

	line.Reference = record[3]
	if line.Overage, err = entities.ParseOverage(record[4]); err != nil {
		return nil, err
	}
	if line.Consumable, err = parseBool(record[5], "consumable"); err != nil {
		return nil, err
	}
	if line.Inherited, err = parseBool(record[6], "inherited"); err != nil {
		return nil, err
	}
	if line.Optional, err = parseBool(record[7], "optional"); err != nil {
		return nil, err
	}
	for _, sub := range strings.Split(record[8], ";") {
		if sub = strings.TrimSpace(sub); sub != "" {
			line.Substitutes = append(line.Substitutes, entities.PartNumber(sub))
		}
	}
	line.Note = record[9]

	if err := line.Validate(); err != nil {
		return nil, err
	}
	return line, nil
}

func parseStockItem(record []string) (*entities.StockItem, error) {
	quantity, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return nil, fmt.Errorf("invalid quantity: %s", record[1])
	}

	item, err := entities.NewStockItem(entities.PartNumber(strings.TrimSpace(record[0])), quantity, record[4])
	if err != nil {
		return nil, err
	}

	item.Serial = strings.TrimSpace(record[2])
	if item.Serial != "" && !quantity.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("serialized stock %s must have quantity 1, got %s", item.Serial, quantity)
	}
	item.Batch = record[3]

	if item.Status, err = parseStockStatus(record[5]); err != nil {
		return nil, err
	}

	if s := strings.TrimSpace(record[6]); s != "" {
		receipt, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid receipt_date format: %s (expected YYYY-MM-DD)", s)
		}
		item.ReceiptDate = receipt
	}
	if s := strings.TrimSpace(record[7]); s != "" {
		expiry, err := time.Parse(dateLayout, s)
		if err != nil {
			return nil, fmt.Errorf("invalid expiry_date format: %s (expected YYYY-MM-DD)", s)
		}
		item.ExpiryDate = &expiry
	}

	return item, nil
}

func parseBool(s, column string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "false", "no", "n":
		return false, nil
	case "1", "true", "yes", "y":
		return true, nil
	default:
		return false, fmt.Errorf("invalid %s: %s (expected true or false)", column, s)
	}
}

func parseStockStatus(s string) (entities.StockStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "available":
		return entities.Available, nil
	case "quarantine":
		return entities.Quarantine, nil
	case "consumed":
		return entities.Consumed, nil
	default:
		return entities.Available, fmt.Errorf("invalid status: %s (expected: Available, Quarantine, or Consumed)", s)
	}
}
