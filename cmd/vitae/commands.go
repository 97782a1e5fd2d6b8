package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/vitae/internal/config"
	"github.com/kalambet/vitae/internal/ingest"
	"github.com/kalambet/vitae/internal/records"
	"github.com/kalambet/vitae/internal/storage"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>",
	Short: "Extract and store records from a resume",
	Long: `Send a resume to the running server, which extracts its text,
structures it into experience and project records and stores the new ones.

Examples:
  vitae ingest ./resume.pdf
  vitae ingest ./resume.docx --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		printStep("Processing %s...", args[0])
		resp, err := client.upload(cmd.Context(), "/resume-parsing", args[0])
		if err != nil {
			return err
		}

		var res ingest.Result
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		if asJSON {
			return printJSON(os.Stdout, res)
		}

		if res.Structuring.Status != "ok" {
			printWarning("Structuring degraded: %s", res.Structuring.Reason)
		}
		printSuccess("Stored %d experience(s) and %d project(s)", res.Stored.Experiences, res.Stored.Projects)
		if n := res.Duplicates.Experiences + res.Duplicates.Projects; n > 0 {
			printStatus("Duplicates skipped", "%d", n)
		}
		printStatus("Ingestion", "%s", res.IngestionID)
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Store a raw file without processing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/upload", args[0])
		if err != nil {
			return err
		}

		var res struct {
			Filename string `json:"filename"`
		}
		if err := decodeJSON(resp, &res); err != nil {
			return err
		}
		printSuccess("Uploaded as %s", res.Filename)
		return nil
	},
}

func init() {
	ingestCmd.Flags().Bool("json", false, "print the full server response as JSON")
}

// --- list ---

var listCmd = &cobra.Command{
	Use:       "list <experiences|projects>",
	Short:     "List stored records",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"experiences", "projects"},
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		byTime, _ := cmd.Flags().GetBool("by-time")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		switch args[0] {
		case "experiences", "experience":
			if byTime {
				return listExperienceGroups(cmd.Context(), client, asJSON)
			}
			var items []records.Identified[records.Experience]
			if err := getJSON(cmd.Context(), client, "/experiences", &items); err != nil {
				return err
			}
			if asJSON {
				return printJSON(os.Stdout, items)
			}
			if len(items) == 0 {
				fmt.Println("No experiences stored.")
			}
			for _, it := range items {
				printExperience(it.ID, it.Record)
			}
			return nil

		case "projects", "project":
			var items []records.Identified[records.Project]
			if err := getJSON(cmd.Context(), client, "/projects", &items); err != nil {
				return err
			}
			if asJSON {
				return printJSON(os.Stdout, items)
			}
			if len(items) == 0 {
				fmt.Println("No projects stored.")
			}
			for _, it := range items {
				printProject(it.ID, it.Record)
			}
			return nil
		}
		return fmt.Errorf("unknown record kind %q (want experiences or projects)", args[0])
	},
}

func listExperienceGroups(ctx context.Context, client *apiClient, asJSON bool) error {
	var groups []records.TimeGroup
	if err := getJSON(ctx, client, "/experiences?group=time", &groups); err != nil {
		return err
	}
	if asJSON {
		return printJSON(os.Stdout, groups)
	}
	for _, g := range groups {
		if len(g.Items) == 0 {
			continue
		}
		fmt.Printf("\n%s\n", colorize(colorBold, g.Label))
		for _, e := range g.Items {
			printExperience(records.ExperienceFingerprint(e), e)
		}
	}
	return nil
}

func init() {
	listCmd.Flags().Bool("json", false, "print records as JSON")
	listCmd.Flags().Bool("by-time", false, "group experiences by upload time")
}

func getJSON(ctx context.Context, client *apiClient, path string, v any) error {
	resp, err := client.get(ctx, path)
	if err != nil {
		return err
	}
	return decodeJSON(resp, v)
}

func printExperience(id string, e records.Experience) {
	fmt.Printf("%s  %s @ %s  %s\n", colorize(colorCyan, id), e.Role, e.Organization, e.DateRange)
	if e.Location != "" {
		fmt.Printf("    %s\n", e.Location)
	}
	for _, a := range e.Achievements {
		fmt.Printf("    - %s\n", truncate(a, 120))
	}
}

func printProject(id string, p records.Project) {
	fmt.Printf("%s  %s (%s)  %s\n", colorize(colorCyan, id), p.ProjectName, p.Role, p.DateRange)
	for _, d := range p.Details {
		fmt.Printf("    - %s\n", truncate(d, 120))
	}
}

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Fuzzy search stored records",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		kind, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/search?kind=" + url.QueryEscape(kind) + "&q=" + url.QueryEscape(query)
		var hits []struct {
			ID     string         `json:"id"`
			Score  int            `json:"score"`
			Record map[string]any `json:"record"`
		}
		if err := getJSON(cmd.Context(), client, path, &hits); err != nil {
			return err
		}
		if limit > 0 && len(hits) > limit {
			hits = hits[:limit]
		}
		if asJSON {
			return printJSON(os.Stdout, hits)
		}

		if len(hits) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		for _, h := range hits {
			title := h.Record["role"]
			if kind == "project" {
				title = h.Record["project_name"]
			}
			fmt.Printf("%s [score: %d]  %v\n", colorize(colorCyan, h.ID), h.Score, title)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().String("kind", "experience", "record kind: experience or project")
	searchCmd.Flags().Int("limit", 10, "maximum number of results")
	searchCmd.Flags().Bool("json", false, "print results as JSON")
}

// --- delete ---

var deleteCmd = &cobra.Command{
	Use:   "delete <experience|project> [id]",
	Short: "Delete records by id or by matching fields",
	Long: `Delete a record by the id shown in list or search output, or delete
every record matching role, organization or project name and date range.

Examples:
  vitae delete experience 3f9a1c2b7d4e5f60
  vitae delete experience --role Analyst --organization Acme --date-range 2023
  vitae delete project --name Tracker --role Lead --date-range 2022`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := strings.TrimSuffix(args[0], "s")
		if kind != "experience" && kind != "project" {
			return fmt.Errorf("unknown record kind %q (want experience or project)", args[0])
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) == 2 {
			resp, err := client.delete(cmd.Context(), "/"+kind+"s/"+url.PathEscape(args[1]))
			if err != nil {
				return err
			}
			var res struct {
				Deleted int `json:"deleted"`
			}
			if err := decodeJSON(resp, &res); err != nil {
				return err
			}
			printSuccess("Deleted %d %s record(s)", res.Deleted, kind)
			return nil
		}

		role, _ := cmd.Flags().GetString("role")
		dateRange, _ := cmd.Flags().GetString("date-range")
		var body any
		if kind == "experience" {
			org, _ := cmd.Flags().GetString("organization")
			if role == "" && org == "" && dateRange == "" {
				return fmt.Errorf("an id or --role, --organization and --date-range are required")
			}
			body = records.DeleteExperience{Role: role, Organization: org, DateRange: dateRange}
		} else {
			name, _ := cmd.Flags().GetString("name")
			if name == "" && role == "" && dateRange == "" {
				return fmt.Errorf("an id or --name, --role and --date-range are required")
			}
			body = records.DeleteProject{ProjectName: name, Role: role, DateRange: dateRange}
		}

		resp, err := client.post(cmd.Context(), "/"+kind+"/delete", body)
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Deleted matching %s records", kind)
		return nil
	},
}

func init() {
	deleteCmd.Flags().String("role", "", "role to match")
	deleteCmd.Flags().String("organization", "", "organization to match (experiences)")
	deleteCmd.Flags().String("name", "", "project name to match (projects)")
	deleteCmd.Flags().String("date-range", "", "date range to match")
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect past ingestions",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent ingestions",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var runs []storage.Ingestion
		if err := getJSON(cmd.Context(), client, fmt.Sprintf("/ingestions?limit=%d", limit), &runs); err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No ingestions found.")
			return nil
		}

		for _, r := range runs {
			status := colorize(colorGreen, r.Status)
			if r.Status == storage.StatusFailed {
				status = colorize(colorRed, r.Status)
			} else if r.StructuringStatus != "" && r.StructuringStatus != "ok" {
				status = colorize(colorYellow, r.StructuringStatus)
			}
			fmt.Printf("%s  %s  %-9s  +%d/%d  %s\n",
				colorize(colorCyan, r.ID[:min(8, len(r.ID))]),
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				status,
				r.ExperiencesStored+r.ProjectsStored,
				r.ExperiencesFound+r.ProjectsFound,
				r.FileName,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single ingestion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		var run storage.Ingestion
		if err := getJSON(cmd.Context(), client, "/ingestions/"+url.PathEscape(args[0]), &run); err != nil {
			return err
		}
		return printJSON(os.Stdout, run)
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete ingestion history older than a cutoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		olderThan, _ := cmd.Flags().GetDuration("older-than")
		if olderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}

		cfg, err := config.LoadForClient()
		if err != nil {
			return err
		}
		history, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer history.Close()

		n, err := history.DeleteIngestionsBefore(time.Now().Add(-olderThan))
		if err != nil {
			return err
		}
		printSuccess("Pruned %d ingestion(s)", n)
		return nil
	},
}

func init() {
	historyListCmd.Flags().Int("limit", 20, "maximum number of ingestions to list")
	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "remove runs older than this")
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyPruneCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadForClient()
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			return printJSON(os.Stdout, config.ShowAll(cfg))
		}
		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		fmt.Printf("\n  config file: %s\n", config.FilePath())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Remove a configuration value so the default applies",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List keys that can be set",
	Run: func(cmd *cobra.Command, args []string) {
		for _, k := range config.ValidKeys() {
			fmt.Println(k)
		}
	},
}

func init() {
	configShowCmd.Flags().Bool("json", false, "print configuration as JSON")
	configCmd.AddCommand(configShowCmd, configSetCmd, configUnsetCmd, configKeysCmd)
}
