package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/chat"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

const (
	ClassDegraded      = "degraded"
	ClassIrrelevant    = "irrelevant"
	ClassModerate      = "moderate"
	ClassFullyRelevant = "fully_relevant"
)

// Asker is the part of the deal room service the evaluator drives.
type Asker interface {
	Chat(ctx context.Context, storeID, message string, opts chat.Options) (*chat.Result, error)
	ClearHistory(ctx context.Context, storeID string) error
}

type Evaluator struct {
	asker Asker
	opts  chat.Options
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth,omitempty"`
	// ExpectedSources are document titles a good answer should cite.
	ExpectedSources []string `json:"expected_sources,omitempty"`
	Category        string   `json:"category,omitempty"`
}

type ItemResult struct {
	Question          string   `json:"question"`
	Category          string   `json:"category,omitempty"`
	Answer            string   `json:"answer"`
	Citations         []string `json:"citations"`
	Degraded          bool     `json:"degraded"`
	SourceRecall      float64  `json:"source_recall"`
	TermRecall        float64  `json:"term_recall"`
	GroundingCoverage float64  `json:"grounding_coverage"`
	Classification    string   `json:"classification"`
}

type EvaluationReport struct {
	TotalQueries         int          `json:"total_queries"`
	DegradedCount        int          `json:"degraded_count"`
	IrrelevantCount      int          `json:"irrelevant_count"`
	ModerateCount        int          `json:"moderate_count"`
	FullyRelevantCount   int          `json:"fully_relevant_count"`
	AvgSourceRecall      float64      `json:"avg_source_recall"`
	AvgTermRecall        float64      `json:"avg_term_recall"`
	AvgGroundingCoverage float64      `json:"avg_grounding_coverage"`
	FullyRelevantPercent float64      `json:"fully_relevant_percent"`
	Items                []ItemResult `json:"items"`
}

func NewEvaluator(asker Asker, opts chat.Options) *Evaluator {
	return &Evaluator{
		asker: asker,
		opts:  opts,
	}
}

// RunDatasetEvaluation asks every question against storeID. History is
// cleared before each question and after the run, so each answer stands alone.
func (e *Evaluator) RunDatasetEvaluation(ctx context.Context, storeID string, dataset *Dataset) (*EvaluationReport, error) {
	logger.Info("Running dataset evaluation", zap.String("store_id", storeID), zap.Int("items", len(dataset.Items)))

	report := &EvaluationReport{
		TotalQueries: len(dataset.Items),
		Items:        make([]ItemResult, 0, len(dataset.Items)),
	}
	defer func() {
		if err := e.asker.ClearHistory(context.WithoutCancel(ctx), storeID); err != nil {
			logger.Warn("Failed to clear history after evaluation", zap.Error(err))
		}
	}()

	var totalSource, totalTerm, totalCoverage float64

	for i, item := range dataset.Items {
		logger.Info("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		if err := e.asker.ClearHistory(ctx, storeID); err != nil {
			return nil, fmt.Errorf("failed to clear history: %w", err)
		}

		result, err := e.asker.Chat(ctx, storeID, item.Question, e.opts)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate item %d: %w", i+1, err)
		}

		scored := EvaluateAnswer(item, result)
		report.Items = append(report.Items, scored)

		switch scored.Classification {
		case ClassDegraded:
			report.DegradedCount++
		case ClassIrrelevant:
			report.IrrelevantCount++
		case ClassModerate:
			report.ModerateCount++
		case ClassFullyRelevant:
			report.FullyRelevantCount++
		}

		totalSource += scored.SourceRecall
		totalTerm += scored.TermRecall
		totalCoverage += scored.GroundingCoverage
	}

	if report.TotalQueries > 0 {
		n := float64(report.TotalQueries)
		report.AvgSourceRecall = totalSource / n
		report.AvgTermRecall = totalTerm / n
		report.AvgGroundingCoverage = totalCoverage / n
		report.FullyRelevantPercent = float64(report.FullyRelevantCount) / n * 100
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("degraded", report.DegradedCount),
		zap.Int("irrelevant", report.IrrelevantCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("fully_relevant", report.FullyRelevantCount),
	)

	return report, nil
}

// EvaluateAnswer scores one answer against its dataset item.
func EvaluateAnswer(item DatasetItem, result *chat.Result) ItemResult {
	scored := ItemResult{
		Question:  item.Question,
		Category:  item.Category,
		Answer:    result.Text,
		Citations: result.Citations,
		Degraded:  result.Degraded,
	}
	if result.Degraded {
		scored.Classification = ClassDegraded
		return scored
	}

	scored.SourceRecall = sourceRecall(item.ExpectedSources, result.Citations)
	scored.TermRecall = termRecall(item.GroundTruth, result.Text)
	scored.GroundingCoverage = groundingCoverage(result)

	var signals []float64
	if len(item.ExpectedSources) > 0 {
		signals = append(signals, scored.SourceRecall)
	}
	if item.GroundTruth != "" {
		signals = append(signals, scored.TermRecall)
	}
	if len(signals) == 0 {
		signals = append(signals, scored.GroundingCoverage)
	}

	var sum float64
	for _, s := range signals {
		sum += s
	}
	scored.Classification = classify(sum / float64(len(signals)))
	return scored
}

func classify(score float64) string {
	switch {
	case score < 0.3:
		return ClassIrrelevant
	case score < 0.7:
		return ClassModerate
	default:
		return ClassFullyRelevant
	}
}

func sourceRecall(expected, cited []string) float64 {
	if len(expected) == 0 {
		return 0
	}

	citedSet := make(map[string]struct{}, len(cited))
	for _, c := range cited {
		citedSet[strings.ToLower(c)] = struct{}{}
	}

	hits := 0
	for _, e := range expected {
		if _, ok := citedSet[strings.ToLower(e)]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(expected))
}

// termRecall is the share of distinct ground truth terms found in the answer.
func termRecall(groundTruth, answer string) float64 {
	truth := terms(groundTruth)
	if len(truth) == 0 {
		return 0
	}

	have := terms(answer)
	hits := 0
	for t := range truth {
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(truth))
}

func terms(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.' && r != '$' && r != '%'
	})

	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if len(f) > 1 || (f != "" && unicode.IsDigit(rune(f[0]))) {
			out[f] = struct{}{}
		}
	}
	return out
}

// groundingCoverage is the share of answer characters backed by a support
// segment, capped at 1.
func groundingCoverage(result *chat.Result) float64 {
	answerLen := len([]rune(result.Text))
	if answerLen == 0 {
		return 0
	}

	seen := make(map[string]struct{}, len(result.Grounding.Supports))
	covered := 0
	for _, s := range result.Grounding.Supports {
		if _, ok := seen[s.Text]; ok {
			continue
		}
		seen[s.Text] = struct{}{}
		covered += len([]rune(s.Text))
	}

	return min(1, float64(covered)/float64(answerLen))
}

func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

func ParseDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}

	for i, item := range dataset.Items {
		if strings.TrimSpace(item.Question) == "" {
			return nil, fmt.Errorf("dataset item %d has no question", i+1)
		}
	}
	return &dataset, nil
}

func (r *EvaluationReport) String() string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d

Classifications:
- Degraded: %d
- Irrelevant: %d
- Moderately Relevant: %d
- Fully Relevant: %d (%.1f%%)

Average Scores:
- Source Recall: %.2f
- Term Recall: %.2f
- Grounding Coverage: %.2f
`,
		r.TotalQueries,
		r.DegradedCount,
		r.IrrelevantCount,
		r.ModerateCount,
		r.FullyRelevantCount, r.FullyRelevantPercent,
		r.AvgSourceRecall,
		r.AvgTermRecall,
		r.AvgGroundingCoverage,
	)
}
