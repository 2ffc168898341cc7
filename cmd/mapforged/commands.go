package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mapforge-io/mapforge/internal/dsl"
	"github.com/mapforge-io/mapforge/internal/engine"
)

// loadMapping reads a mapping document, YAML or JSON by extension.
func loadMapping(path string) (*dsl.Mapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return dsl.ParseYAML(data)
	default:
		return dsl.Parse(data)
	}
}

// loadRows reads a JSON array of row records.
func loadRows(path string) ([]map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("rows file %s: %w", path, err)
	}
	return rows, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "mapforged: %v\n", err)
	os.Exit(1)
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	mappingPath := fs.String("mapping", "", "Path to the mapping document (JSON or YAML)")
	rowsPath := fs.String("rows", "", "Optional path to a JSON array of sample rows")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *mappingPath == "" {
		fatal(fmt.Errorf("-mapping is required"))
	}

	m, err := loadMapping(*mappingPath)
	if err != nil {
		fatal(err)
	}
	rows, err := loadRows(*rowsPath)
	if err != nil {
		fatal(err)
	}

	result := engine.New(engine.Options{}).Validate(m, rows)
	printJSON(result)
	if !result.OK() {
		os.Exit(1)
	}
}

func runCompile(args []string) {
	fs := flag.NewFlagSet("compile", flag.ExitOnError)
	mappingPath := fs.String("mapping", "", "Path to the mapping document (JSON or YAML)")
	includePlan := fs.Bool("plan", false, "Include the per-field execution plan")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *mappingPath == "" {
		fatal(fmt.Errorf("-mapping is required"))
	}

	m, err := loadMapping(*mappingPath)
	if err != nil {
		fatal(err)
	}
	art, err := engine.New(engine.Options{}).Compile(m, *includePlan)
	if err != nil {
		fatal(err)
	}
	printJSON(art)
}

func runDryRun(args []string) {
	fs := flag.NewFlagSet("dry-run", flag.ExitOnError)
	mappingPath := fs.String("mapping", "", "Path to the mapping document (JSON or YAML)")
	rowsPath := fs.String("rows", "", "Path to a JSON array of sample rows")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *mappingPath == "" || *rowsPath == "" {
		fatal(fmt.Errorf("-mapping and -rows are required"))
	}

	m, err := loadMapping(*mappingPath)
	if err != nil {
		fatal(err)
	}
	rows, err := loadRows(*rowsPath)
	if err != nil {
		fatal(err)
	}
	result, err := engine.New(engine.Options{}).DryRun(m, rows)
	if err != nil {
		fatal(err)
	}
	printJSON(result)
}

func runCheckIDs(args []string) {
	fs := flag.NewFlagSet("check-ids", flag.ExitOnError)
	mappingPath := fs.String("mapping", "", "Path to the mapping document carrying the id policy")
	rowsPath := fs.String("rows", "", "Path to a JSON array of sample rows")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *mappingPath == "" || *rowsPath == "" {
		fatal(fmt.Errorf("-mapping and -rows are required"))
	}

	m, err := loadMapping(*mappingPath)
	if err != nil {
		fatal(err)
	}
	if m.IDPolicy == nil {
		fatal(fmt.Errorf("mapping has no id_policy"))
	}
	rows, err := loadRows(*rowsPath)
	if err != nil {
		fatal(err)
	}
	printJSON(engine.New(engine.Options{}).CheckIDs(m.IDPolicy, rows))
}

func runInferTypes(args []string) {
	fs := flag.NewFlagSet("infer-types", flag.ExitOnError)
	rowsPath := fs.String("rows", "", "Path to a JSON array of sample rows")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *rowsPath == "" {
		fatal(fmt.Errorf("-rows is required"))
	}

	rows, err := loadRows(*rowsPath)
	if err != nil {
		fatal(err)
	}
	printJSON(engine.New(engine.Options{}).InferTypes(rows, dsl.Globals{}))
}
