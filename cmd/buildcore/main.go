package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/vsinha/buildcore/pkg/config"
	"github.com/vsinha/buildcore/pkg/infrastructure/logging"
	"github.com/vsinha/buildcore/pkg/interfaces/cli/commands"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not read .env: %v", err)
	}

	args := os.Args[1:]
	var action string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}

	fs := flag.NewFlagSet("buildcore", flag.ExitOnError)
	var (
		configFile       = fs.String("config", "", "Configuration file")
		scenarioPath     = fs.String("scenario", "", "YAML scenario file or CSV scenario directory")
		part             = fs.String("part", "", "Part number")
		pattern          = fs.String("pattern", "", "Serial pattern")
		quantity         = fs.Int("qty", 0, "Number of identifiers to generate")
		create           = fs.Bool("create", false, "Persist generated serials as stock")
		includeOptional  = fs.Bool("optional", false, "Allocate optional lines too")
		allowSubstitutes = fs.Bool("substitutes", false, "Allow substitute parts when allocating")
		location         = fs.String("location", "", "Stock location")
		format           = fs.String("format", "text", "Output format: text, json, yaml")
		outputFile       = fs.String("output", "", "Write the report to a file")
		verbose          = fs.Bool("verbose", false, "Enable verbose output")
		help             = fs.Bool("help", false, "Show help message")
	)
	fs.Usage = func() { commands.ShowHelp(os.Stderr) }
	fs.Parse(args)

	if *help || action == "" {
		commands.ShowHelp(os.Stdout)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	env, err := commands.NewEnvironment(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialise store", zap.Error(err))
	}

	cmd := commands.NewFulfillmentCommand(commands.Config{
		Action:           action,
		ScenarioPath:     *scenarioPath,
		Part:             *part,
		Pattern:          *pattern,
		Quantity:         *quantity,
		Create:           *create,
		IncludeOptional:  *includeOptional,
		AllowSubstitutes: *allowSubstitutes,
		Location:         *location,
		Format:           *format,
		OutputFile:       *outputFile,
		Verbose:          *verbose,
	}, env)

	err = cmd.Execute(ctx)
	if cerr := env.Close(); cerr != nil {
		logger.Warn("closing store", zap.Error(cerr))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}
