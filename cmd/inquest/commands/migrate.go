package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inquest/internal/printer"
	"inquest/internal/schema"
)

var (
	migrateOutput       string
	migrateValidateOnly bool
	migratePretty       bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <input-file>",
	Short: "Migrate a persisted investigation document to the v2 schema",
	Long: `Migrate converts a legacy (v1) investigation document into the versioned
v2 shape, or validates an existing v2 document.

Unparseable v1 fragments become processing.errors entries in the output
instead of aborting the migration; only an input file that cannot be
parsed at all is a hard error.

Validation findings are printed but do not fail the command unless
--validate-only is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVarP(&migrateOutput, "output", "o", "", "Output file path (stdout if omitted)")
	migrateCmd.Flags().BoolVar(&migrateValidateOnly, "validate-only", false, "Convert and validate, write nothing")
	migrateCmd.Flags().BoolVar(&migratePretty, "pretty", false, "Indent the JSON output")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	inputPath := args[0]

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return printer.Error("Cannot read input file", err.Error(), nil)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return printer.Error("Input is not valid JSON", err.Error(), nil)
	}

	var migrated []byte
	switch schema.DetectVersion(raw) {
	case schema.Version1:
		doc, result := schema.MigrateV1ToV2(raw)
		if len(result.Errors) > 0 {
			printer.Warning("%d fragment(s) could not be migrated; see processing.errors\n", len(result.Errors))
		}
		printer.Info("Migrated %d finding(s) and %d question(s)\n", result.Findings, result.Questions)

		if migratePretty {
			migrated, err = json.MarshalIndent(doc, "", "  ")
		} else {
			migrated, err = json.Marshal(doc)
		}
		if err != nil {
			return printer.Error("Cannot serialize migrated document", err.Error(), nil)
		}

	case schema.Version2:
		printer.Info("Input is already schema 2.0; validating\n")
		migrated = data
		if migratePretty {
			var doc any
			if err := json.Unmarshal(data, &doc); err == nil {
				if pretty, err := json.MarshalIndent(doc, "", "  "); err == nil {
					migrated = pretty
				}
			}
		}

	default:
		return printer.Error("Unrecognized document shape",
			"The input is neither a legacy (v1) nor a versioned (v2) investigation document.", nil)
	}

	// Validate the (possibly migrated) document.
	var final map[string]any
	if err := json.Unmarshal(migrated, &final); err != nil {
		return printer.Error("Migrated document is not valid JSON", err.Error(), nil)
	}
	validationErrs := schema.ValidateV2(final)
	for _, msg := range validationErrs {
		printer.Warning("validation: %s\n", msg)
	}

	if migrateValidateOnly {
		if len(validationErrs) > 0 {
			return fmt.Errorf("validation failed with %d error(s)", len(validationErrs))
		}
		printer.Success("Document is valid\n")
		return nil
	}

	if migrateOutput == "" {
		fmt.Println(string(migrated))
		return nil
	}

	if err := os.WriteFile(migrateOutput, migrated, 0o644); err != nil {
		return printer.Error("Cannot write output file", err.Error(), nil)
	}
	printer.Success("Wrote %s\n", migrateOutput)
	return nil
}
