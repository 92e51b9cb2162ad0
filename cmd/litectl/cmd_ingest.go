package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/localnerve/lite/internal/catalog"
	"github.com/localnerve/lite/internal/ingest"
	"github.com/localnerve/lite/internal/jobs"
	"github.com/localnerve/lite/internal/models"
	"github.com/localnerve/lite/internal/services"
	"github.com/spf13/cobra"
)

// ingestResult is the JSON form of one ingested file
type ingestResult struct {
	File   string               `json:"file"`
	Run    *models.IngestionRun `json:"run,omitempty"`
	Report *ingest.Report       `json:"report,omitempty"`
	Error  string               `json:"error,omitempty"`
}

func newIngestCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <case-id> <file>...",
		Short: "Ingest triage JSON collections into a case",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			return e.ingestFiles(cmd, c, args[1:], "")
		},
	}
}

func newImportCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "import <case-id> <category> <file>",
		Short: "Import a CSV or JSON export into one category",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.loadCase(args[0])
			if err != nil {
				return err
			}
			def, err := catalog.Get(catalog.Category(args[1]))
			if err != nil {
				return err
			}
			return e.ingestFiles(cmd, c, args[2:], string(def.Name))
		},
	}
}

// ingestFiles runs each file to completion; one failed file does not stop the rest
func (e *env) ingestFiles(cmd *cobra.Command, c *models.Case, files []string, category string) error {
	results := make([]ingestResult, 0, len(files))
	failed := 0
	for _, file := range files {
		res := e.ingestFile(cmd, c, file, category)
		if res.Error != "" {
			failed++
		}
		results = append(results, res)
	}

	err := e.print(cmd.OutOrStdout(), results, func(w io.Writer) {
		for _, res := range results {
			printIngestResult(w, res)
		}
	})
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

func (e *env) ingestFile(cmd *cobra.Command, c *models.Case, file, category string) ingestResult {
	res := ingestResult{File: file}
	f, err := os.Open(file)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	runUUID := uuid.NewString()
	name := filepath.Base(file)
	path, size, err := jobs.SaveUpload(e.cfg.UploadFolder, c.Namespace, runUUID, name, f, e.cfg.MaxUploadBytes)
	if err != nil {
		res.Error = err.Error()
		return res
	}

	run, report, err := e.runner.RunNow(cmd.Context(), services.RunInput{
		RunUUID:  runUUID,
		CaseID:   c.ID,
		Filename: name,
		FilePath: path,
		FileSize: size,
		Category: category,
	})
	res.Run = run
	res.Report = report
	if err != nil {
		res.Error = err.Error()
	}
	return res
}

func printIngestResult(w io.Writer, res ingestResult) {
	if res.Report == nil {
		failure(w, "%s: %s", res.File, res.Error)
		return
	}
	r := res.Report
	line := fmt.Sprintf("%s: %s, %d accepted, %d rejected, %d failed in %dms",
		res.File, r.Status, r.Accepted, r.Rejected, r.Failed, r.ElapsedMS)
	if res.Error != "" || r.Status != models.RunCompleted {
		failure(w, "%s", line)
	} else {
		success(w, "%s", line)
	}
	for _, cr := range r.Categories {
		field(w, "  "+string(cr.Category), fmt.Sprintf("%d accepted, %d rejected", cr.Accepted, cr.Rejected))
		if cr.Error != "" {
			failure(w, "    %s", cr.Error)
		}
	}
	for _, msg := range r.Warnings {
		warning(w, "%s", msg)
	}
	if res.Error != "" && r.Error == "" {
		failure(w, "%s", res.Error)
	}
}
