package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

// Detector is the part of the engine an evaluation needs.
type Detector interface {
	Detect(ctx context.Context, text string, useContext bool) (*analysis.QuestionAnalysis, error)
}

type Evaluator struct {
	detector Detector
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Text       string `json:"text"`
	IsQuestion bool   `json:"is_question"`
	Type       string `json:"type,omitempty"`
	UseContext bool   `json:"use_context,omitempty"`
}

type Mismatch struct {
	Text     string `json:"text"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
}

type Report struct {
	Total          int        `json:"total"`
	TruePositives  int        `json:"true_positives"`
	FalsePositives int        `json:"false_positives"`
	TrueNegatives  int        `json:"true_negatives"`
	FalseNegatives int        `json:"false_negatives"`
	Errors         int        `json:"errors"`
	Accuracy       float64    `json:"accuracy"`
	Precision      float64    `json:"precision"`
	Recall         float64    `json:"recall"`
	F1             float64    `json:"f1"`
	TypeLabeled    int        `json:"type_labeled"`
	TypeCorrect    int        `json:"type_correct"`
	TypeAccuracy   float64    `json:"type_accuracy"`
	AvgLatencyMs   float64    `json:"avg_latency_ms"`
	Mismatches     []Mismatch `json:"mismatches,omitempty"`
}

func NewEvaluator(d Detector) *Evaluator {
	return &Evaluator{
		detector: d,
	}
}

// Run classifies every item in order, so items marked use_context see the
// questions that precede them.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{Total: len(dataset.Items)}
	var totalLatency time.Duration

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		res, err := e.detector.Detect(ctx, item.Text, item.UseContext)
		totalLatency += time.Since(start)
		if err != nil {
			logger.Error("Failed to evaluate item", zap.Int("index", i), zap.Error(err))
			report.Errors++
			continue
		}

		got := res != nil && res.IsQuestion
		switch {
		case got && item.IsQuestion:
			report.TruePositives++
		case got && !item.IsQuestion:
			report.FalsePositives++
		case !got && item.IsQuestion:
			report.FalseNegatives++
		default:
			report.TrueNegatives++
		}

		if got != item.IsQuestion {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Text:     item.Text,
				Expected: verdict(item.IsQuestion, item.Type),
				Got:      verdict(got, typeOf(res)),
			})
			continue
		}

		if got && item.Type != "" {
			report.TypeLabeled++
			if strings.EqualFold(item.Type, typeOf(res)) {
				report.TypeCorrect++
			} else {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Text:     item.Text,
					Expected: verdict(true, item.Type),
					Got:      verdict(true, typeOf(res)),
				})
			}
		}
	}

	scored := report.Total - report.Errors
	if scored > 0 {
		report.Accuracy = float64(report.TruePositives+report.TrueNegatives) / float64(scored)
	}
	if predicted := report.TruePositives + report.FalsePositives; predicted > 0 {
		report.Precision = float64(report.TruePositives) / float64(predicted)
	}
	if actual := report.TruePositives + report.FalseNegatives; actual > 0 {
		report.Recall = float64(report.TruePositives) / float64(actual)
	}
	if report.Precision+report.Recall > 0 {
		report.F1 = 2 * report.Precision * report.Recall / (report.Precision + report.Recall)
	}
	if report.TypeLabeled > 0 {
		report.TypeAccuracy = float64(report.TypeCorrect) / float64(report.TypeLabeled)
	}
	if report.Total > 0 {
		report.AvgLatencyMs = float64(totalLatency.Microseconds()) / float64(report.Total) / 1000
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.Total),
		zap.Float64("accuracy", report.Accuracy),
		zap.Float64("f1", report.F1),
		zap.Int("errors", report.Errors),
	)

	return report, nil
}

func typeOf(res *analysis.QuestionAnalysis) string {
	if res == nil {
		return ""
	}
	return string(res.QuestionType)
}

func verdict(isQuestion bool, qType string) string {
	if !isQuestion {
		return "statement"
	}
	if qType == "" {
		return "question"
	}
	return "question/" + qType
}

// LoadDataset accepts either {"items": [...]} or a bare array of items.
func LoadDataset(data []byte) (*Dataset, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []DatasetItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
		}
		return &Dataset{Items: items}, nil
	}

	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

func GenerateReport(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, `
Evaluation Report
=================

Total Items: %d (errors: %d)

Detection:
- Accuracy:  %.1f%%
- Precision: %.1f%%
- Recall:    %.1f%%
- F1:        %.3f
- TP %d / FP %d / TN %d / FN %d

Question Types:
- Correct: %d of %d labeled (%.1f%%)

Average Latency: %.3f ms
`,
		report.Total, report.Errors,
		report.Accuracy*100,
		report.Precision*100,
		report.Recall*100,
		report.F1,
		report.TruePositives, report.FalsePositives, report.TrueNegatives, report.FalseNegatives,
		report.TypeCorrect, report.TypeLabeled, report.TypeAccuracy*100,
		report.AvgLatencyMs,
	)

	if len(report.Mismatches) > 0 {
		b.WriteString("\nMismatches:\n")
		for _, m := range report.Mismatches {
			fmt.Fprintf(&b, "- %q expected %s, got %s\n", m.Text, m.Expected, m.Got)
		}
	}
	return b.String()
}
