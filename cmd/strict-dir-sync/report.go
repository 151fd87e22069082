package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/yuya-takeyama/strict-dir-sync/pkg/executor"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/planner"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

// PlanResult represents the files a copy would create
type PlanResult struct {
	RunID   string      `json:"run_id"`
	Source  string      `json:"source"`
	Target  string      `json:"target"`
	Files   []PlanFile  `json:"files"`
	Summary PlanSummary `json:"summary"`
}

type PlanFile struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Size   int64  `json:"size"`
}

type PlanSummary struct {
	Missing      int `json:"missing"`
	SourceFiles  int `json:"source_files"`
	TargetFiles  int `json:"target_files"`
	ReadFailures int `json:"read_failures"`
}

// SyncResult represents the actual copy results
type SyncResult struct {
	RunID   string        `json:"run_id"`
	Files   []ResultFile  `json:"files"`
	Errors  []ErrorFile   `json:"errors"`
	Summary ResultSummary `json:"summary"`
}

type ResultFile struct {
	Action string `json:"action"` // "copied", "skipped"
	Source string `json:"source"`
	Target string `json:"target"`
}

type ErrorFile struct {
	Source string `json:"source"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}

type ResultSummary struct {
	Copied  int `json:"copied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func buildPlanResult(result *session.ScanResult) (PlanResult, error) {
	plan := PlanResult{
		RunID:  result.RunID,
		Source: result.SourceRoot,
		Target: result.TargetRoot,
		Files:  []PlanFile{},
		Summary: PlanSummary{
			Missing:      len(result.Missing),
			SourceFiles:  result.SourceFiles,
			TargetFiles:  result.TargetFiles,
			ReadFailures: len(result.Failures),
		},
	}

	items, err := planner.PlanReplication(result.Missing, result.SourceRoot, result.TargetRoot)
	if err != nil {
		return plan, err
	}
	for _, item := range items {
		plan.Files = append(plan.Files, PlanFile{
			Source: item.SourcePath,
			Target: item.DestPath,
			Size:   item.Size,
		})
	}
	return plan, nil
}

func buildSyncResult(runID string, report *executor.Report) SyncResult {
	syncResult := SyncResult{
		RunID:  runID,
		Files:  []ResultFile{},
		Errors: []ErrorFile{},
	}

	for _, r := range report.Results {
		switch r.Outcome {
		case executor.OutcomeCopied, executor.OutcomeSkippedExisting:
			syncResult.Files = append(syncResult.Files, ResultFile{
				Action: string(r.Outcome),
				Source: r.Item.SourcePath,
				Target: r.Item.DestPath,
			})
		default:
			errorFile := ErrorFile{
				Source: r.Item.SourcePath,
				Target: r.Item.DestPath,
			}
			if r.Error != nil {
				errorFile.Error = r.Error.Error()
			}
			syncResult.Errors = append(syncResult.Errors, errorFile)
		}
	}

	syncResult.Summary = ResultSummary{
		Copied:  report.Copied,
		Skipped: report.Skipped,
		Failed:  report.Failed,
	}
	return syncResult
}

func marshalJSON(v interface{}) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := marshalJSON(v)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}
