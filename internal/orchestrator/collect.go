package orchestrator

import (
	"strings"

	"github.com/stomper-go/stomper/internal/defect"
	"github.com/stomper-go/stomper/internal/models"
)

// filterDefects applies error_type, ignore, and max_errors_per_iteration,
// in that order, per spec.md §6's SessionConfig contract.
func filterDefects(defects []defect.Defect, cfg models.SessionConfig) []defect.Defect {
	filtered := make([]defect.Defect, 0, len(defects))

	ignore := make(map[string]bool, len(cfg.Ignore))
	for _, code := range cfg.Ignore {
		ignore[code] = true
	}

	for _, d := range defects {
		if cfg.ErrorType != "" && !strings.EqualFold(d.Code, cfg.ErrorType) {
			continue
		}
		if ignore[d.Code] {
			continue
		}
		filtered = append(filtered, d)
	}

	if cfg.MaxErrorsPerIteration > 0 && len(filtered) > cfg.MaxErrorsPerIteration {
		filtered = filtered[:cfg.MaxErrorsPerIteration]
	}

	return filtered
}

// buildFileTasks groups defects by file and wraps each group as a
// FileTask, preserving first-seen file order.
func buildFileTasks(defects []defect.Defect, maxAttempts int) []*models.FileTask {
	order, byFile := defect.GroupByFile(defects)

	tasks := make([]*models.FileTask, 0, len(order))
	for _, file := range order {
		tasks = append(tasks, models.NewFileTask(file, byFile[file], maxAttempts))
	}
	return tasks
}

// limitFiles truncates tasks to maxFiles when maxFiles > 0.
func limitFiles(tasks []*models.FileTask, maxFiles int) []*models.FileTask {
	if maxFiles > 0 && len(tasks) > maxFiles {
		return tasks[:maxFiles]
	}
	return tasks
}

func dryRunResults(tasks []*models.FileTask) []models.FileTaskResult {
	results := make([]models.FileTaskResult, 0, len(tasks))
	for _, t := range tasks {
		results = append(results, models.FileTaskResult{
			File:      t.File,
			Outcome:   models.OutcomeSkipped,
			Remaining: t.Defects,
		})
	}
	return results
}

func skippedResult(t *models.FileTask) models.FileTaskResult {
	return models.FileTaskResult{
		File:      t.File,
		Outcome:   models.OutcomeSkipped,
		Remaining: t.Defects,
		Attempts:  t.Attempt,
	}
}
