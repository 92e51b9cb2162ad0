package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/query"
	"github.com/localnerve/lite/internal/services"
	"github.com/spf13/cobra"
)

func newCasesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "Create, inspect and remove cases",
	}
	cmd.AddCommand(
		newCasesListCmd(e),
		newCasesCreateCmd(e),
		newCasesShowCmd(e),
		newCasesStatusCmd(e),
		newCasesDeleteCmd(e),
		newCasesRecountCmd(e),
	)
	return cmd
}

func newCasesListCmd(e *env) *cobra.Command {
	var f services.CaseFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.PerPage == 0 {
				f.PerPage = e.cfg.CasesPerPage
			}
			page, err := services.ListCases(e.db, f)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), page, func(w io.Writer) {
				rows := make([][]string, 0, len(page.Cases))
				for _, c := range page.Cases {
					rows = append(rows, []string{
						strconv.FormatUint(c.ID, 10), c.CaseName, c.Namespace, c.Status, c.Priority,
						strconv.FormatInt(c.RecordCount, 10), c.IngestionStatus,
					})
				}
				renderTable(w, []string{"ID", "NAME", "NAMESPACE", "STATUS", "PRIORITY", "RECORDS", "INGESTION"}, rows)
				fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("page %d, %d of %d cases", page.Page, len(page.Cases), page.Total)))
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.Status, "status", "", "only cases with this status")
	fl.StringVar(&f.Name, "name", "", "case name substring")
	fl.IntVar(&f.Page, "page", 1, "page number")
	fl.IntVar(&f.PerPage, "per-page", 0, "cases per page (default CASES_PER_PAGE)")
	return cmd
}

func newCasesCreateCmd(e *env) *cobra.Command {
	var in services.CaseInput
	var number, collected string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a case and its namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.CaseName = args[0]
			if number != "" {
				in.CaseNumber = &number
			}
			if collected != "" {
				t, err := time.Parse(time.RFC3339, collected)
				if err != nil {
					if t, err = time.Parse(time.DateOnly, collected); err != nil {
						return fmt.Errorf("collection date %q: %w", collected, err)
					}
				}
				in.CollectionDate = &t
			}
			c, err := services.CreateCase(e.db, in)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), c, func(w io.Writer) {
				success(w, "Created case %d %q in namespace %s", c.ID, c.CaseName, c.Namespace)
			})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&number, "number", "", "external case number")
	fl.StringVar(&in.Description, "description", "", "case description")
	fl.StringVar(&in.Investigator, "investigator", "", "lead investigator")
	fl.StringVar(&in.EvidenceSource, "source", "", "evidence source")
	fl.StringVar(&collected, "collected", "", "collection date, RFC3339 or YYYY-MM-DD")
	fl.StringVar(&in.Priority, "priority", "", "low, medium, high or critical")
	return cmd
}

func newCasesShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <case-id>",
		Short: "Show a case with its category counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			counts, err := query.CategoryCounts(cmd.Context(), e.db, c)
			if err != nil {
				return err
			}
			runs, err := services.ListRuns(e.db, c.ID, 10)
			if err != nil {
				return err
			}
			detail := struct {
				*models.Case
				Categories []query.CategoryCount  `json:"categories"`
				Runs       []models.IngestionRun `json:"runs"`
			}{c, counts, runs}

			return e.print(cmd.OutOrStdout(), detail, func(w io.Writer) {
				printCase(w, c)
				rows := [][]string{}
				for _, cc := range counts {
					if cc.Count > 0 {
						rows = append(rows, []string{string(cc.Category), cc.Title, strconv.FormatInt(cc.Count, 10)})
					}
				}
				if len(rows) > 0 {
					renderTable(w, []string{"CATEGORY", "TITLE", "ROWS"}, rows)
				}
				if len(runs) > 0 {
					rows = rows[:0]
					for _, r := range runs {
						rows = append(rows, []string{r.RunUUID, r.Filename, r.Status,
							strconv.FormatInt(r.Accepted, 10), strconv.FormatInt(r.Rejected, 10)})
					}
					renderTable(w, []string{"RUN", "FILE", "STATUS", "ACCEPTED", "REJECTED"}, rows)
				}
			})
		},
	}
}

func newCasesStatusCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <case-id> <active|inactive|closed>",
		Short: "Change the status of a case",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			c, err = services.SetStatus(e.db, c.ID, args[1])
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), c, func(w io.Writer) {
				success(w, "Case %d is now %s", c.ID, c.Status)
			})
		},
	}
}

func newCasesDeleteCmd(e *env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <case-id>",
		Short: "Delete a case, its namespace and its runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			if !yes {
				return fmt.Errorf("refusing to delete case %d %q without --yes", c.ID, c.CaseName)
			}
			deleted, err := services.DeleteCase(e.db, c.ID)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), deleted, func(w io.Writer) {
				success(w, "Deleted case %d and namespace %s", deleted.ID, deleted.Namespace)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the deletion")
	return cmd
}

func newCasesRecountCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "recount <case-id>",
		Short: "Recompute the record count from the category tables",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			c, err = services.Recount(e.db, c.ID)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), c, func(w io.Writer) {
				success(w, "Case %d holds %d records", c.ID, c.RecordCount)
			})
		},
	}
}

func printCase(w io.Writer, c *models.Case) {
	fmt.Fprintln(w, styleHeader.Render(fmt.Sprintf("Case %d: %s", c.ID, c.CaseName)))
	field(w, "Namespace", c.Namespace)
	if c.CaseNumber != nil {
		field(w, "Number", *c.CaseNumber)
	}
	field(w, "Status", c.Status)
	field(w, "Priority", c.Priority)
	if c.Investigator != "" {
		field(w, "Investigator", c.Investigator)
	}
	if c.EvidenceSource != "" {
		field(w, "Evidence source", c.EvidenceSource)
	}
	if c.CollectionDate != nil {
		field(w, "Collected", c.CollectionDate.Format(time.DateOnly))
	}
	field(w, "Records", c.RecordCount)
	field(w, "Artifacts", c.TotalArtifacts)
	field(w, "Ingestion", c.IngestionStatus)
	field(w, "Created", c.CreatedAt.Format(time.RFC3339))
}
