package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wysRocket/dao-copilot-sub005/internal/analysis"
	"github.com/wysRocket/dao-copilot-sub005/internal/detector"
	"github.com/wysRocket/dao-copilot-sub005/internal/evaluation"
	"github.com/wysRocket/dao-copilot-sub005/internal/transcript"
	"github.com/wysRocket/dao-copilot-sub005/pkg/config"
	"github.com/wysRocket/dao-copilot-sub005/pkg/logger"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "qdetect",
		Short:         "Classify transcript lines as questions",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().Bool("defaults", false, "ignore config.yaml and QDETECT_* overrides")
	root.PersistentFlags().String("log-level", "", "log to stderr at this level")

	root.AddCommand(classifyCmd())
	root.AddCommand(evalCmd())

	return root
}

func newEngine(cmd *cobra.Command) (*detector.Engine, error) {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := logger.Init(logger.Options{Level: level, Format: "console", OutputPath: "stderr"}); err != nil {
			return nil, err
		}
	}

	cfg := config.Default()
	if useDefaults, _ := cmd.Flags().GetBool("defaults"); !useDefaults {
		loaded, err := config.Load()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	dc := detector.FromSettings(cfg.Detector)
	// one-shot runs gain nothing from tuning or background sweeping
	dc.EnableAdaptiveThresholds = false
	dc.SweepInterval = 0
	return detector.New(dc)
}

func classifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify [text...]",
		Short: "Classify the given text, or each line of stdin",
		Long: `Classify text as a question or a statement.

Examples:
  qdetect classify "What is the capital of France?"
  cat transcript.txt | qdetect classify --context --json`,
		RunE: runClassify,
	}

	cmd.Flags().BoolP("context", "c", false, "score follow-ups against earlier lines")
	cmd.Flags().BoolP("json", "j", false, "output one JSON object per line")
	cmd.Flags().BoolP("questions-only", "q", false, "print only lines detected as questions")
	cmd.Flags().BoolP("split", "s", false, "split input into sentences before classifying")

	return cmd
}

type classifyLine struct {
	Text     string                     `json:"text"`
	Question bool                       `json:"is_question"`
	Analysis *analysis.QuestionAnalysis `json:"analysis,omitempty"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	useContext, _ := cmd.Flags().GetBool("context")
	asJSON, _ := cmd.Flags().GetBool("json")
	questionsOnly, _ := cmd.Flags().GetBool("questions-only")
	split, _ := cmd.Flags().GetBool("split")

	engine, err := newEngine(cmd)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	defer engine.Close()

	lines := args
	if len(args) > 0 {
		lines = []string{strings.Join(args, " ")}
	} else {
		lines, err = readLines(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}

	if split {
		lines, err = splitLines(lines)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	enc := json.NewEncoder(out)
	for _, line := range lines {
		res, err := engine.Detect(ctx, line, useContext)
		if err != nil {
			return fmt.Errorf("detection failed: %w", err)
		}
		isQuestion := res != nil && res.IsQuestion
		if questionsOnly && !isQuestion {
			continue
		}

		if asJSON {
			if err := enc.Encode(classifyLine{Text: line, Question: isQuestion, Analysis: res}); err != nil {
				return err
			}
			continue
		}

		if isQuestion {
			fmt.Fprintf(out, "QUESTION  %-14s %.2f  %s\n", res.QuestionType, res.Confidence, line)
		} else {
			fmt.Fprintf(out, "-         %-14s %4s  %s\n", "", "", line)
		}
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return lines, nil
}

func splitLines(lines []string) ([]string, error) {
	segmenter := transcript.NewSegmenter(0)
	var out []string
	for _, line := range lines {
		utterances, err := segmenter.Segment(line)
		if err != nil {
			return nil, err
		}
		for _, u := range utterances {
			out = append(out, u.Text)
		}
	}
	return out, nil
}

func evalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval [dataset.json]",
		Short: "Measure detection accuracy against a labeled dataset",
		Long: `Run the detector over a labeled dataset and report accuracy.

Without a file the built-in sample dataset is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runEval,
	}

	cmd.Flags().BoolP("json", "j", false, "output the report as JSON")

	return cmd
}

func runEval(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	dataset := evaluation.DefaultDataset()
	if len(args) == 1 {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read dataset: %w", err)
		}
		dataset, err = evaluation.LoadDataset(data)
		if err != nil {
			return err
		}
	}

	engine, err := newEngine(cmd)
	if err != nil {
		return fmt.Errorf("failed to create detector: %w", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := evaluation.NewEvaluator(engine).Run(ctx, dataset)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	if asJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), evaluation.GenerateReport(report))
	return nil
}
