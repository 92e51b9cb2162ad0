package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/query"
	"github.com/spf13/cobra"
)

func newSearchCmd(e *env) *cobra.Command {
	var p query.SearchParams
	cmd := &cobra.Command{
		Use:   "search <case-id> <keyword>",
		Short: "Case-insensitive keyword search over searchable columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			p.Keyword = args[1]
			hits, err := query.Search(cmd.Context(), e.db, c, p)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), hits, func(w io.Writer) {
				rows := make([][]string, 0, len(hits))
				for _, h := range hits {
					rows = append(rows, []string{string(h.Category), strconv.FormatInt(h.RowID, 10), h.Column, h.Snippet})
				}
				renderTable(w, []string{"CATEGORY", "ROW", "COLUMN", "MATCH"}, rows)
				fmt.Fprintln(w, styleMuted.Render(fmt.Sprintf("%d matches for %q", len(hits), p.Keyword)))
			})
		},
	}
	cmd.Flags().StringSliceVarP(&p.Categories, "categories", "c", nil, "limit the search to these categories")
	cmd.Flags().IntVarP(&p.Limit, "limit", "n", 0, "maximum matches")
	return cmd
}

func newUsersCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "users <case-id>",
		Short: "Per-user accounts, processes and authentication activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			users, err := query.UserActivity(cmd.Context(), e.db, c)
			if err != nil {
				return err
			}
			return e.print(cmd.OutOrStdout(), users, func(w io.Writer) {
				rows := make([][]string, 0, len(users))
				for _, u := range users {
					uid, shell, last := "-", "-", "-"
					if u.UID != nil {
						uid = strconv.FormatInt(*u.UID, 10)
					}
					if u.Shell != nil {
						shell = *u.Shell
					}
					if u.LastAuthEvent != nil {
						last = u.LastAuthEvent.Format(time.RFC3339)
					}
					rows = append(rows, []string{u.Username, uid, shell,
						strconv.FormatInt(u.ProcessCount, 10),
						fmt.Sprintf("%d/%d", u.AuthFailures, u.AuthEvents), last})
				}
				renderTable(w, []string{"USER", "UID", "SHELL", "PROCESSES", "AUTH FAIL/TOTAL", "LAST AUTH"}, rows)
			})
		},
	}
}

func newCatalogCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:         "catalog",
		Short:       "List the artifact categories and their columns",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"offline": "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			defs := catalog.All()
			return e.print(cmd.OutOrStdout(), defs, func(w io.Writer) {
				rows := make([][]string, 0, len(defs))
				for _, def := range defs {
					rows = append(rows, []string{string(def.Name), def.Title,
						strings.Join(def.Keys, ", "), strconv.Itoa(len(def.Columns()))})
				}
				renderTable(w, []string{"CATEGORY", "TITLE", "SOURCE KEYS", "COLUMNS"}, rows)
			})
		},
	}
}
