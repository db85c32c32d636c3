package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"inquest/internal/config"
	"inquest/internal/logging"
	"inquest/internal/monitor"
	"inquest/internal/printer"
	"inquest/pkg/blackboard"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported investigations with summaries",
	Long: `List scans the export directory and prints a summary of every exported
investigation: status, finding count per area, and contained errors.

Use --json for machine-readable output.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var questionsCmd = &cobra.Command{
	Use:   "questions <investigation-id>",
	Short: "Print an investigation's guiding questions",
	Long: `Questions reads an investigation's exported document and prints its
guiding questions, auto-detecting the legacy (v1) and versioned (v2)
document shapes.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestions,
}

var statusReportCmd = &cobra.Command{
	Use:   "status-report <output-file>",
	Short: "Write a JSON status snapshot of all exported investigations",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatusReport,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(statusReportCmd)
}

// exportedDocuments parses every exported document in the export dir.
func exportedDocuments(cfg *config.Config) (map[string]*blackboard.Document, error) {
	entries, err := os.ReadDir(cfg.Paths.ExportDir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*blackboard.Document{}, nil
		}
		return nil, err
	}

	docs := make(map[string]*blackboard.Document)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(cfg.Paths.ExportDir, entry.Name()))
		if err != nil {
			continue
		}
		doc, err := blackboard.ParseDocument(data)
		if err != nil {
			continue
		}
		docs[doc.Investigation.ID] = doc
	}
	return docs, nil
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	docs, err := exportedDocuments(cfg)
	if err != nil {
		return printer.Error("Cannot read export directory", err.Error(), nil)
	}

	if listJSON {
		out, err := json.MarshalIndent(docs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	if len(docs) == 0 {
		printer.Info("No exported investigations in %s\n", cfg.Paths.ExportDir)
		return nil
	}

	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		doc := docs[id]
		total := 0
		for _, findings := range doc.Findings {
			total += len(findings)
		}
		printer.Header("%s\n", id)
		printer.Info("  status:    %s\n", doc.Investigation.Status)
		printer.Info("  findings:  %d\n", total)
		printer.Info("  questions: %d\n", doc.Questions.Summary.TotalCount)
		if n := len(doc.Processing.Errors); n > 0 {
			printer.Warning("  errors:    %d contained\n", n)
		}
	}
	return nil
}

func runQuestions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	logger, err := logging.New(debugLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dashboard := monitor.New(cfg.Paths.ExportDir, cfg.Paths.ResearchLogDir,
		time.Duration(cfg.Monitor.RefreshIntervalSeconds)*time.Second, logger)

	questions, err := dashboard.Questions(args[0])
	if err != nil {
		return printer.Error("Cannot read questions", err.Error(), nil)
	}

	for _, q := range questions {
		prefix := q.ID
		if q.ParentID != "" {
			prefix = "  " + prefix
		}
		printer.Info("%-10s [%s, %s] %s\n", prefix, q.Category, q.Priority, q.Question)
	}
	return nil
}

func runStatusReport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	logger, err := logging.New(debugLog)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dashboard := monitor.New(cfg.Paths.ExportDir, cfg.Paths.ResearchLogDir,
		time.Duration(cfg.Monitor.RefreshIntervalSeconds)*time.Second, logger)

	docs, err := exportedDocuments(cfg)
	if err != nil {
		return printer.Error("Cannot read export directory", err.Error(), nil)
	}

	for id, doc := range docs {
		dashboard.RegisterInvestigation(id, doc.Investigation.CaseContext.CaseID)
		total := 0
		byArea := make(map[string]int)
		for area, findings := range doc.Findings {
			byArea[area] = len(findings)
			total += len(findings)
		}
		dashboard.UpdateFindingsCount(id, total, byArea)
		if doc.Investigation.Status != blackboard.StatusActive {
			dashboard.CompleteInvestigation(id, string(doc.Investigation.Status))
		}
	}

	if err := dashboard.ExportStatusReport(args[0]); err != nil {
		return printer.Error("Cannot write status report", err.Error(), nil)
	}
	printer.Success("Wrote %s (%d investigation(s))\n", args[0], len(docs))
	return nil
}
