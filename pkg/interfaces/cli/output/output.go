package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vsinha/buildcore/pkg/application/dto"
	"github.com/vsinha/buildcore/pkg/domain/entities"
)

// Config holds configuration for output generation
type Config struct {
	Format     string
	OutputFile string // stdout when empty
	Verbose    bool
}

// Report collects whatever a command produced; empty sections are skipped
type Report struct {
	Part         entities.PartNumber     `json:"part,omitempty" yaml:"part,omitempty"`
	Lines        []dto.ResolvedLine      `json:"lines,omitempty" yaml:"lines,omitempty"`
	Availability []dto.LineAvailability  `json:"availability,omitempty" yaml:"availability,omitempty"`
	Validation   *entities.BOMValidation `json:"validation,omitempty" yaml:"validation,omitempty"`
	Identifiers  []string                `json:"identifiers,omitempty" yaml:"identifiers,omitempty"`
	Builds       []BuildReport           `json:"builds,omitempty" yaml:"builds,omitempty"`
	Events       []dto.EventRecord       `json:"events,omitempty" yaml:"events,omitempty"`
}

// BuildReport is the outcome of one scenario build
type BuildReport struct {
	Build      *entities.BuildOrder      `json:"build" yaml:"build"`
	Allocation []*dto.AutoAllocateResult `json:"allocation,omitempty" yaml:"allocation,omitempty"`
	Completion []*dto.CompletionResult   `json:"completion,omitempty" yaml:"completion,omitempty"`
	Shortfalls []entities.LineShortfall  `json:"shortfalls,omitempty" yaml:"shortfalls,omitempty"`
	Errors     []string                  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Generate writes the report in the configured format
func Generate(report *Report, config Config) error {
	w := io.Writer(os.Stdout)
	if config.OutputFile != "" {
		f, err := os.Create(config.OutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	return Write(w, report, config)
}

// Write renders the report to w
func Write(w io.Writer, report *Report, config Config) error {
	switch config.Format {
	case "text", "":
		return generateTextOutput(w, report, config)
	case "json":
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", config.Format)
	}
}

// generateTextOutput creates human-readable text output
func generateTextOutput(w io.Writer, report *Report, config Config) error {
	if report.Part != "" {
		fmt.Fprintf(w, "Part: %s\n\n", report.Part)
	}

	if len(report.Lines) > 0 {
		fmt.Fprintf(w, "Resolved BOM:\n")
		fmt.Fprintf(w, "%-20s %-10s %-8s %-6s %-20s %-20s\n",
			"Sub Part", "Qty", "Overage", "Flags", "Substitutes", "Source")
		fmt.Fprintf(w, "%-20s %-10s %-8s %-6s %-20s %-20s\n",
			strings.Repeat("-", 20), strings.Repeat("-", 10), strings.Repeat("-", 8),
			strings.Repeat("-", 6), strings.Repeat("-", 20), strings.Repeat("-", 20))
		for _, l := range report.Lines {
			fmt.Fprintf(w, "%-20s %-10s %-8s %-6s %-20s %-20s\n",
				l.SubPart, l.Quantity, l.Overage, lineFlags(l), joinParts(l.Substitutes), l.Source)
			if config.Verbose && l.Note != "" {
				fmt.Fprintf(w, "    note: %s\n", l.Note)
			}
		}
		fmt.Fprintln(w)
	}

	if len(report.Availability) > 0 {
		fmt.Fprintf(w, "Availability:\n")
		fmt.Fprintf(w, "%-20s %-12s %-12s %-12s\n", "Sub Part", "Own Stock", "Substitutes", "Total")
		for _, a := range report.Availability {
			subs := a.Total.Sub(a.SubPartQty)
			fmt.Fprintf(w, "%-20s %-12s %-12s %-12s\n", a.SubPart, a.SubPartQty, subs, a.Total)
		}
		fmt.Fprintln(w)
	}

	if v := report.Validation; v != nil {
		state := "not validated"
		if v.Validated {
			state = "validated"
		}
		fmt.Fprintf(w, "BOM of %s: %s\n", v.Assembly, state)
		if v.Checksum != "" {
			fmt.Fprintf(w, "Checksum: %s\n", v.Checksum)
		}
		fmt.Fprintln(w)
	}

	if len(report.Identifiers) > 0 {
		fmt.Fprintf(w, "Identifiers (%d):\n", len(report.Identifiers))
		for _, id := range report.Identifiers {
			fmt.Fprintf(w, "  %s\n", id)
		}
		fmt.Fprintln(w)
	}

	for _, b := range report.Builds {
		writeBuild(w, b)
	}

	if config.Verbose && len(report.Events) > 0 {
		fmt.Fprintf(w, "Events:\n")
		for _, e := range report.Events {
			fmt.Fprintf(w, "  %4d %-24s %s v%d\n", e.Position, e.Type, e.Stream, e.Version)
		}
	}
	return nil
}

func writeBuild(w io.Writer, b BuildReport) {
	fmt.Fprintf(w, "Build %s: %s x %s (%s, %s completed)\n",
		b.Build.ID, b.Build.Part, b.Build.Quantity, b.Build.Status, b.Build.Completed)

	for _, a := range b.Allocation {
		fmt.Fprintf(w, "  Output %s: %s, %d allocations\n", a.Output, a.State, len(a.Allocations))
		for _, s := range a.Unsatisfied {
			fmt.Fprintf(w, "    short %-20s missing %s\n", s.SubPart, s.Missing())
		}
	}
	for _, c := range b.Completion {
		fmt.Fprintf(w, "  Completed %s: consumed %s from %d items",
			c.Output.ID, c.ConsumedQuantity, len(c.ConsumedStock))
		if len(c.Serials) > 0 {
			fmt.Fprintf(w, ", serials %s", strings.Join(c.Serials, ","))
		}
		fmt.Fprintln(w)
	}
	for _, s := range b.Shortfalls {
		fmt.Fprintf(w, "  Shortfall %-20s required %s allocated %s\n", s.SubPart, s.Required, s.Allocated)
	}
	for _, e := range b.Errors {
		fmt.Fprintf(w, "  Error: %s\n", e)
	}
	fmt.Fprintln(w)
}

func lineFlags(l dto.ResolvedLine) string {
	var flags []byte
	if l.Consumable {
		flags = append(flags, 'C')
	}
	if l.Inherited {
		flags = append(flags, 'I')
	}
	if l.Optional {
		flags = append(flags, 'O')
	}
	if len(flags) == 0 {
		return "-"
	}
	return string(flags)
}

func joinParts(parts []entities.PartNumber) string {
	if len(parts) == 0 {
		return "-"
	}
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = string(p)
	}
	return strings.Join(s, ",")
}
