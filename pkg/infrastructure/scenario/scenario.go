// Package scenario loads parts, BOM lines, stock and build orders from a YAML
// file or a directory of CSV files and writes them into a store.
package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vsinha/buildcore/pkg/domain/entities"
	"github.com/vsinha/buildcore/pkg/domain/repositories"
	"github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/repositories/csv"
)

// CSV file names read from a scenario directory. stock.csv is optional.
const (
	PartsFile = "parts.csv"
	BOMFile   = "bom.csv"
	StockFile = "stock.csv"
)

// Quantity decodes a YAML scalar into a decimal without a float round trip
type Quantity struct {
	decimal.Decimal
}

// UnmarshalYAML implements yaml.Unmarshaler
func (q *Quantity) UnmarshalYAML(node *yaml.Node) error {
	d, err := decimal.NewFromString(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid quantity %q", node.Line, node.Value)
	}
	q.Decimal = d
	return nil
}

// Date decodes a YYYY-MM-DD scalar
type Date struct {
	time.Time
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Date) UnmarshalYAML(node *yaml.Node) error {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: invalid date %q (expected YYYY-MM-DD)", node.Line, node.Value)
	}
	d.Time = t
	return nil
}

// PartSpec is one part entry of a scenario file
type PartSpec struct {
	PartNumber  string `yaml:"part_number"`
	Description string `yaml:"description"`
	Template    bool   `yaml:"template"`
	VariantOf   string `yaml:"variant_of"`
	Assembly    bool   `yaml:"assembly"`
	Trackable   bool   `yaml:"trackable"`
	ExpiryDays  int    `yaml:"default_expiry_days"`
}

// LineSpec is one BOM line entry of a scenario file
type LineSpec struct {
	Assembly    string   `yaml:"assembly"`
	SubPart     string   `yaml:"sub_part"`
	Quantity    Quantity `yaml:"quantity"`
	Reference   string   `yaml:"reference"`
	Overage     string   `yaml:"overage"`
	Consumable  bool     `yaml:"consumable"`
	Inherited   bool     `yaml:"inherited"`
	Optional    bool     `yaml:"optional"`
	Substitutes []string `yaml:"substitutes"`
	Note        string   `yaml:"note"`
}

// StockSpec is one stock entry. A serials pattern creates quantity single-unit
// items, one per expanded identifier.
type StockSpec struct {
	Part     string    `yaml:"part_number"`
	Quantity *Quantity `yaml:"quantity"`
	Serial   string    `yaml:"serial"`
	Serials  string    `yaml:"serials"`
	Batch    string    `yaml:"batch"`
	Location string    `yaml:"location"`
	Status   string    `yaml:"status"`
	Received *Date     `yaml:"receipt_date"`
	Expires  *Date     `yaml:"expiry_date"`
}

// OutputSpec describes one output to open on a build
type OutputSpec struct {
	Quantity      Quantity `yaml:"quantity"`
	SerialPattern string   `yaml:"serials"`
	Batch         string   `yaml:"batch"`
	Location      string   `yaml:"location"`
}

// BuildSpec describes a build order and its outputs
type BuildSpec struct {
	ID       string       `yaml:"id"`
	Part     string       `yaml:"part_number"`
	Quantity Quantity     `yaml:"quantity"`
	Outputs  []OutputSpec `yaml:"outputs"`
}

type document struct {
	Parts  []PartSpec  `yaml:"parts"`
	BOM    []LineSpec  `yaml:"bom"`
	Stock  []StockSpec `yaml:"stock"`
	Builds []BuildSpec `yaml:"builds"`
}

// Scenario is a parsed data set ready to be applied to a store
type Scenario struct {
	Parts  []*entities.Part
	Lines  []*entities.BOMLine
	Stock  []*entities.StockItem
	Builds []BuildSpec

	// serial patterns expanded through the sequencer on Apply
	serialized []services.SerializedStockRequest
}

// Load reads a scenario from a YAML file or from a directory of CSV files
func Load(path string) (*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: stat %s: %w", path, err)
	}
	if info.IsDir() {
		return LoadCSVDir(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	sc, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return sc, nil
}

// LoadCSVDir reads parts.csv, bom.csv and, when present, stock.csv from dir
func LoadCSVDir(dir string) (*Scenario, error) {
	loader := csv.NewLoader()
	sc := &Scenario{}

	var err error
	if sc.Parts, err = loader.LoadParts(filepath.Join(dir, PartsFile)); err != nil {
		return nil, err
	}
	if sc.Lines, err = loader.LoadBOM(filepath.Join(dir, BOMFile)); err != nil {
		return nil, err
	}

	stockPath := filepath.Join(dir, StockFile)
	if _, err := os.Stat(stockPath); err == nil {
		if sc.Stock, err = loader.LoadStock(stockPath); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("scenario: stat %s: %w", stockPath, err)
	}

	return sc, nil
}

// ParseYAML decodes a scenario document
func ParseYAML(data []byte) (*Scenario, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("scenario payload is empty")
	}
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}

	sc := &Scenario{Builds: doc.Builds}
	for i, ps := range doc.Parts {
		part, err := entities.NewPart(entities.PartNumber(ps.PartNumber), ps.Description, entities.PartNumber(ps.VariantOf))
		if err != nil {
			return nil, fmt.Errorf("parts[%d]: %w", i, err)
		}
		if ps.ExpiryDays < 0 {
			return nil, fmt.Errorf("parts[%d]: default_expiry_days cannot be negative", i)
		}
		part.IsTemplate = ps.Template
		part.Assembly = ps.Assembly
		part.Trackable = ps.Trackable
		part.DefaultExpiryDays = ps.ExpiryDays
		sc.Parts = append(sc.Parts, part)
	}

	for i, ls := range doc.BOM {
		line, err := ls.toLine()
		if err != nil {
			return nil, fmt.Errorf("bom[%d]: %w", i, err)
		}
		sc.Lines = append(sc.Lines, line)
	}

	for i, ss := range doc.Stock {
		if err := sc.addStock(ss); err != nil {
			return nil, fmt.Errorf("stock[%d]: %w", i, err)
		}
	}

	for i, bs := range doc.Builds {
		if bs.ID == "" || bs.Part == "" {
			return nil, fmt.Errorf("builds[%d]: id and part_number are required", i)
		}
	}

	return sc, nil
}

func (ls LineSpec) toLine() (*entities.BOMLine, error) {
	line, err := entities.NewBOMLine(entities.PartNumber(ls.Assembly), entities.PartNumber(ls.SubPart), ls.Quantity.Decimal)
	if err != nil {
		return nil, err
	}
	if line.Overage, err = entities.ParseOverage(ls.Overage); err != nil {
		return nil, err
	}
	line.Reference = ls.Reference
	line.Consumable = ls.Consumable
	line.Inherited = ls.Inherited
	line.Optional = ls.Optional
	line.Note = ls.Note
	for _, sub := range ls.Substitutes {
		line.Substitutes = append(line.Substitutes, entities.PartNumber(sub))
	}
	if err := line.Validate(); err != nil {
		return nil, err
	}
	return line, nil
}

func (sc *Scenario) addStock(ss StockSpec) error {
	status, err := entities.ParseStockStatus(ss.Status)
	if err != nil {
		return err
	}

	if ss.Serials != "" {
		if ss.Serial != "" {
			return fmt.Errorf("serial and serials are mutually exclusive")
		}
		if ss.Quantity == nil || !ss.Quantity.IsInteger() || !ss.Quantity.IsPositive() {
			return fmt.Errorf("serials need a positive whole quantity")
		}
		req := services.SerializedStockRequest{
			Part:     entities.PartNumber(ss.Part),
			Pattern:  ss.Serials,
			Quantity: int(ss.Quantity.IntPart()),
			Batch:    ss.Batch,
			Location: ss.Location,
		}
		if ss.Expires != nil {
			expiry := ss.Expires.Time
			req.ExpiryDate = &expiry
		}
		sc.serialized = append(sc.serialized, req)
		return nil
	}

	quantity := decimal.NewFromInt(1)
	if ss.Quantity != nil {
		quantity = ss.Quantity.Decimal
	}
	item, err := entities.NewStockItem(entities.PartNumber(ss.Part), quantity, ss.Location)
	if err != nil {
		return err
	}
	if ss.Serial != "" && !quantity.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("serialized stock %s must have quantity 1, got %s", ss.Serial, quantity)
	}
	item.Serial = ss.Serial
	item.Batch = ss.Batch
	item.Status = status
	if ss.Received != nil {
		item.ReceiptDate = ss.Received.Time
	}
	if ss.Expires != nil {
		expiry := ss.Expires.Time
		item.ExpiryDate = &expiry
	}
	sc.Stock = append(sc.Stock, item)
	return nil
}

// Apply writes parts, BOM lines, stock and serial patterns into store as one unit:
// either everything lands or nothing does. Literal serials and patterns are checked
// against the identifier scope under the sequencer's locks, so sequencer must be
// bound to store. It may be nil only when the scenario carries no serials.
// Builds are left to the caller.
func (sc *Scenario) Apply(ctx context.Context, store repositories.Store, sequencer *services.IdentifierSequencer) error {
	if result := services.NewBOMValidator(store.Parts(), nil).ValidateBOM(sc.Lines); result.HasCycles {
		return fmt.Errorf("%w: %s", entities.ErrCycleDetected, strings.Join(result.Errors, "; "))
	}

	serialParts := sc.serialParts()
	if sequencer == nil {
		if len(serialParts) > 0 {
			return fmt.Errorf("scenario has serialized stock but no sequencer was given")
		}
		return store.WithinTx(ctx, func(tx repositories.Store) error {
			return sc.write(ctx, tx, nil)
		})
	}
	return sequencer.Batch(ctx, serialParts, func(tx repositories.Store, batch *services.SerialBatch) error {
		return sc.write(ctx, tx, batch)
	})
}

// serialParts lists the parts whose identifier scopes Apply touches
func (sc *Scenario) serialParts() []entities.PartNumber {
	var parts []entities.PartNumber
	for _, item := range sc.Stock {
		if item.Serial != "" {
			parts = append(parts, item.Part)
		}
	}
	for _, req := range sc.serialized {
		parts = append(parts, req.Part)
	}
	return parts
}

func (sc *Scenario) write(ctx context.Context, tx repositories.Store, batch *services.SerialBatch) error {
	ordered, err := orderParts(ctx, tx.Parts(), sc.Parts)
	if err != nil {
		return err
	}
	for _, part := range ordered {
		if err := tx.Parts().SavePart(ctx, part); err != nil {
			return fmt.Errorf("saving part %s: %w", part.PartNumber, err)
		}
	}

	for _, line := range sc.Lines {
		for _, pn := range append([]entities.PartNumber{line.Assembly, line.SubPart}, line.Substitutes...) {
			if _, err := tx.Parts().GetPart(ctx, pn); err != nil {
				return fmt.Errorf("BOM line %s -> %s: %w", line.Assembly, line.SubPart, err)
			}
		}
		if err := tx.BOM().SaveBOMLine(ctx, line.Clone()); err != nil {
			return err
		}
	}

	for _, item := range sc.Stock {
		if _, err := tx.Parts().GetPart(ctx, item.Part); err != nil {
			return fmt.Errorf("stock item %s: %w", item.ID, err)
		}
		if item.Serial != "" {
			if err := batch.Claim(ctx, item.Part, item.Serial); err != nil {
				return fmt.Errorf("serial %s for %s: %w", item.Serial, item.Part, err)
			}
		}
		if err := tx.Stock().SaveStockItem(ctx, item.Clone()); err != nil {
			return err
		}
	}

	for _, req := range sc.serialized {
		if _, err := batch.Mint(ctx, req); err != nil {
			return fmt.Errorf("serials %q for %s: %w", req.Pattern, req.Part, err)
		}
	}
	return nil
}

// orderParts returns parts with every template ahead of its variants. A parent
// must be part of the scenario or already stored.
func orderParts(ctx context.Context, existing repositories.PartRepository, parts []*entities.Part) ([]*entities.Part, error) {
	inScenario := make(map[entities.PartNumber]bool, len(parts))
	for _, part := range parts {
		inScenario[part.PartNumber] = true
	}

	placed := make(map[entities.PartNumber]bool, len(parts))
	for _, part := range parts {
		parent := part.VariantOf
		if parent == "" || inScenario[parent] || placed[parent] {
			continue
		}
		if _, err := existing.GetPart(ctx, parent); err != nil {
			return nil, fmt.Errorf("part %s variant of %s: %w", part.PartNumber, parent, err)
		}
		placed[parent] = true
	}

	pending := parts
	ordered := make([]*entities.Part, 0, len(parts))
	for len(pending) > 0 {
		var next []*entities.Part
		for _, part := range pending {
			if part.VariantOf == "" || placed[part.VariantOf] {
				placed[part.PartNumber] = true
				ordered = append(ordered, part)
				continue
			}
			next = append(next, part)
		}
		if len(next) == len(pending) {
			var stuck []entities.PartNumber
			for _, part := range next {
				stuck = append(stuck, part.PartNumber)
			}
			return nil, &entities.CycleError{Path: stuck}
		}
		pending = next
	}
	return ordered, nil
}
