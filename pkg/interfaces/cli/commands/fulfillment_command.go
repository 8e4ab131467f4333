package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/application/services"
	"github.com/vsinha/buildcore/pkg/domain/entities"
	domainservices "github.com/vsinha/buildcore/pkg/domain/services"
	"github.com/vsinha/buildcore/pkg/infrastructure/scenario"
	"github.com/vsinha/buildcore/pkg/interfaces/cli/output"
)

// Actions understood by FulfillmentCommand
const (
	ActionResolve      = "resolve"
	ActionAvailability = "availability"
	ActionValidate     = "validate"
	ActionStatus       = "status"
	ActionSerials      = "serials"
	ActionAutoAllocate = "autoallocate"
	ActionComplete     = "complete"
)

// Config holds configuration for one fulfillment command run
type Config struct {
	Action           string
	ScenarioPath     string
	Part             string
	Pattern          string
	Quantity         int
	Create           bool
	IncludeOptional  bool
	AllowSubstitutes bool
	Location         string
	Format           string
	OutputFile       string
	Verbose          bool
}

// FulfillmentCommand loads an optional scenario and runs one action against the build service
type FulfillmentCommand struct {
	config Config
	env    *Environment
	log    io.Writer
}

// NewFulfillmentCommand creates a new command bound to env
func NewFulfillmentCommand(config Config, env *Environment) *FulfillmentCommand {
	return &FulfillmentCommand{
		config: config,
		env:    env,
		log:    os.Stderr,
	}
}

// Execute runs the command
func (c *FulfillmentCommand) Execute(ctx context.Context) error {
	if err := c.validateInputs(); err != nil {
		return fmt.Errorf("validation error: %w", err)
	}

	var sc *scenario.Scenario
	if c.config.ScenarioPath != "" {
		var err error
		if sc, err = c.loadScenario(ctx); err != nil {
			return err
		}
	}

	_, start, err := c.env.Service.AuditTrail(0)
	if err != nil {
		return err
	}

	report := &output.Report{Part: entities.PartNumber(c.config.Part)}
	switch c.config.Action {
	case ActionResolve:
		err = c.resolve(ctx, report)
	case ActionAvailability:
		err = c.availability(ctx, report)
	case ActionValidate:
		err = c.validate(ctx, report)
	case ActionStatus:
		err = c.status(ctx, report)
	case ActionSerials:
		err = c.serials(ctx, report)
	case ActionAutoAllocate, ActionComplete:
		report.Part = ""
		err = c.build(ctx, sc, report)
	}
	if err != nil {
		return err
	}

	if report.Events, _, err = c.env.Service.AuditTrail(start); err != nil {
		return err
	}

	return output.Generate(report, output.Config{
		Format:     c.config.Format,
		OutputFile: c.config.OutputFile,
		Verbose:    c.config.Verbose,
	})
}

// validateInputs validates the command configuration
func (c *FulfillmentCommand) validateInputs() error {
	switch c.config.Action {
	case ActionResolve, ActionAvailability, ActionValidate, ActionStatus:
		if c.config.Part == "" {
			return fmt.Errorf("%s needs -part", c.config.Action)
		}
	case ActionSerials:
		if c.config.Part == "" {
			return fmt.Errorf("serials needs -part")
		}
		if c.config.Pattern != "" && c.config.Quantity <= 0 {
			return fmt.Errorf("serials with -pattern needs a positive -qty")
		}
		if c.config.Create && c.config.Pattern == "" {
			return fmt.Errorf("serials -create needs -pattern")
		}
	case ActionAutoAllocate, ActionComplete:
		if c.config.ScenarioPath == "" {
			return fmt.Errorf("%s needs a -scenario with builds", c.config.Action)
		}
	case "":
		return fmt.Errorf("no action given")
	default:
		return fmt.Errorf("unknown action: %s", c.config.Action)
	}
	return nil
}

func (c *FulfillmentCommand) loadScenario(ctx context.Context) (*scenario.Scenario, error) {
	sc, err := scenario.Load(c.config.ScenarioPath)
	if err != nil {
		return nil, fmt.Errorf("error loading scenario: %w", err)
	}
	if err := sc.Apply(ctx, c.env.Store, c.env.Service.Sequencer()); err != nil {
		return nil, fmt.Errorf("error applying scenario: %w", err)
	}

	if c.config.Verbose {
		fmt.Fprintf(c.log, "Scenario %s loaded:\n", c.config.ScenarioPath)
		fmt.Fprintf(c.log, "  Parts: %d\n", len(sc.Parts))
		fmt.Fprintf(c.log, "  BOM Lines: %d\n", len(sc.Lines))
		fmt.Fprintf(c.log, "  Stock Items: %d\n", len(sc.Stock))
		fmt.Fprintf(c.log, "  Builds: %d\n", len(sc.Builds))
	}
	return sc, nil
}

func (c *FulfillmentCommand) resolve(ctx context.Context, report *output.Report) error {
	lines, err := c.env.Service.ResolveBOM(ctx, report.Part)
	if err != nil {
		return fmt.Errorf("error resolving BOM: %w", err)
	}
	report.Lines = lines
	return nil
}

func (c *FulfillmentCommand) availability(ctx context.Context, report *output.Report) error {
	avail, err := c.env.Service.Availability(ctx, report.Part)
	if err != nil {
		return fmt.Errorf("error computing availability: %w", err)
	}
	report.Availability = avail
	return nil
}

func (c *FulfillmentCommand) validate(ctx context.Context, report *output.Report) error {
	validation, err := c.env.Service.Validate(ctx, report.Part)
	if err != nil {
		return fmt.Errorf("error validating BOM: %w", err)
	}
	report.Validation = validation
	return nil
}

func (c *FulfillmentCommand) status(ctx context.Context, report *output.Report) error {
	ok, err := c.env.Service.ValidateBOM(ctx, report.Part)
	if err != nil {
		return fmt.Errorf("error reading validation: %w", err)
	}
	report.Validation = &entities.BOMValidation{Assembly: report.Part, Validated: ok}
	return nil
}

func (c *FulfillmentCommand) serials(ctx context.Context, report *output.Report) error {
	svc := c.env.Service
	switch {
	case c.config.Pattern == "":
		next, err := svc.NextIdentifier(ctx, report.Part)
		if err != nil {
			return fmt.Errorf("error reading next identifier: %w", err)
		}
		report.Identifiers = []string{next}
	case c.config.Create:
		items, err := svc.CreateSerializedStock(ctx, domainservices.SerializedStockRequest{
			Part:     report.Part,
			Pattern:  c.config.Pattern,
			Quantity: c.config.Quantity,
			Location: c.config.Location,
		})
		if err != nil {
			return fmt.Errorf("error creating serialized stock: %w", err)
		}
		for _, item := range items {
			report.Identifiers = append(report.Identifiers, item.Serial)
		}
	default:
		ids, err := svc.GenerateIdentifiers(ctx, report.Part, c.config.Pattern, c.config.Quantity)
		if err != nil {
			return fmt.Errorf("error generating identifiers: %w", err)
		}
		report.Identifiers = ids
	}
	return nil
}

// build creates every scenario build, opens its outputs and allocates them greedily.
// The complete action also completes the fully allocated outputs. Failures are reported per build.
func (c *FulfillmentCommand) build(ctx context.Context, sc *scenario.Scenario, report *output.Report) error {
	if len(sc.Builds) == 0 {
		return fmt.Errorf("scenario %s defines no builds", c.config.ScenarioPath)
	}
	svc := c.env.Service
	opts := services.AutoAllocateOptions{
		IncludeOptional:  c.config.IncludeOptional,
		AllowSubstitutes: c.config.AllowSubstitutes,
		Location:         c.config.Location,
	}

	for _, def := range sc.Builds {
		build, err := svc.CreateBuild(ctx, entities.BuildOrderID(def.ID), entities.PartNumber(def.Part), def.Quantity.Decimal)
		if err != nil {
			return fmt.Errorf("error creating build %s: %w", def.ID, err)
		}
		br := output.BuildReport{Build: build}

		for _, o := range def.Outputs {
			out, err := svc.AddOutput(ctx, build.ID, o.Quantity.Decimal, services.OutputOptions{
				SerialPattern: o.SerialPattern,
				Batch:         o.Batch,
				Location:      o.Location,
			})
			if err != nil {
				br.Errors = append(br.Errors, err.Error())
				continue
			}
			c.allocateOutput(ctx, out.ID, opts, &br)
		}

		// reload for the final status and completed quantity
		if br.Build, err = c.env.Store.Builds().GetBuild(ctx, build.ID); err != nil {
			return err
		}
		report.Builds = append(report.Builds, br)
	}
	return nil
}

func (c *FulfillmentCommand) allocateOutput(ctx context.Context, id entities.BuildOutputID, opts services.AutoAllocateOptions, br *output.BuildReport) {
	svc := c.env.Service

	result, err := svc.AutoAllocate(ctx, id, opts)
	if result != nil {
		br.Allocation = append(br.Allocation, result)
	}
	if err != nil {
		c.env.Logger.Warn("auto allocation incomplete", zap.String("output", string(id)), zap.Error(err))
		if !errors.Is(err, entities.ErrInsufficientStock) {
			br.Errors = append(br.Errors, err.Error())
			return
		}
	}

	if c.config.Action != ActionComplete || result == nil || result.State != entities.FullyAllocated {
		short, err := svc.Shortfalls(ctx, id)
		if err != nil {
			br.Errors = append(br.Errors, err.Error())
			return
		}
		br.Shortfalls = append(br.Shortfalls, short...)
		return
	}

	completion, err := svc.CompleteOutput(ctx, id)
	if err != nil {
		br.Errors = append(br.Errors, err.Error())
		return
	}
	br.Completion = append(br.Completion, completion)
}

// ShowHelp writes the usage message
func ShowHelp(w io.Writer) {
	fmt.Fprint(w, `buildcore - build fulfillment for variant BOMs, serials and stock allocation

USAGE:
    buildcore <action> [options]

ACTIONS:
    resolve         Print the effective BOM of -part
    availability    Print unreserved stock per resolved line of -part
    validate        Validate the BOM of -part and store its checksum
    status          Report whether the BOM of -part is still validated
    serials         Without -pattern print the next identifier of -part;
                    with -pattern and -qty preview the expansion;
                    add -create to mint serialized stock
    autoallocate    Create the scenario's builds and allocate their outputs
    complete        As autoallocate, then complete the fully allocated outputs

OPTIONS:
    -config <file>      Configuration file (default: ./configs/config.yaml or ./config.yaml)
    -scenario <path>    YAML scenario file or directory with parts.csv, bom.csv, stock.csv
    -part <pn>          Part number
    -pattern <p>        Serial pattern, e.g. "~", "100-104", "100+4", "100+", "7,~"
    -qty <n>            Number of identifiers to generate
    -create             Persist generated serials as stock
    -optional           Allocate optional lines too
    -substitutes        Allow substitute parts when allocating
    -location <loc>     Restrict allocation to one location, or set the location of new stock
    -format <fmt>       Output format: text, json, yaml (default: text)
    -output <file>      Write the report to a file instead of stdout
    -verbose            Enable verbose output
    -help               Show this help message

SCENARIO YAML:
    parts:
      - {part_number: ENGINE, template: true, assembly: true}
      - {part_number: ENGINE_V1, variant_of: ENGINE, assembly: true, trackable: true}
      - {part_number: GASKET}
    bom:
      - {assembly: ENGINE, sub_part: GASKET, quantity: 4, overage: "25%", inherited: true}
    stock:
      - {part_number: GASKET, quantity: 10, batch: LOT-1, expiry_date: 2027-03-01}
    builds:
      - id: B1
        part_number: ENGINE_V1
        quantity: 1
        outputs:
          - {quantity: 1, serials: "~"}

EXAMPLES:
    buildcore resolve -scenario engine.yaml -part ENGINE_V1
    buildcore serials -scenario engine.yaml -part TURBOPUMP -pattern "~+" -qty 3
    buildcore complete -scenario engine.yaml -substitutes -format json
`)
}
