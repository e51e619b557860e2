package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagemill/pagemill/internal/pipeline"
	"github.com/pagemill/pagemill/internal/storage"
)

// convertCmd represents the convert command.
var convertCmd = &cobra.Command{
	Use:   "convert [file...]",
	Short: "Convert PDF files to orientation-corrected page images",
	Long: `Convert PDF files into PNG page images. Each page is rendered at the
configured DPI, its orientation is detected with OCR and corrected, and
the result is written to the output directory. With --stitch the pages
are combined into a single tall composite image instead.

Examples:
  pagemill convert document.pdf
  pagemill convert *.pdf --output out/
  pagemill convert scan.pdf --stitch --dpi 150`,
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringP("output", "o", ".", "output directory for page images")
	convertCmd.Flags().Float64("dpi", 0, "render resolution in dots per inch (0=configured default)")
	convertCmd.Flags().Int("max-pages", 0, "maximum pages to process per document (0=configured default)")
	convertCmd.Flags().Int("workers", 0, "worker goroutines for orientation correction (0=NumCPU)")
	convertCmd.Flags().Bool("stitch", false, "combine all pages into one composite image")
	convertCmd.Flags().Bool("no-orientation", false, "disable orientation detection and correction")
	convertCmd.Flags().Bool("heuristic-only", false, "use the layout heuristic instead of the OCR engine")
	convertCmd.Flags().Float64("orientation-threshold", 0, "orientation confidence threshold (0..1)")
	convertCmd.Flags().StringSlice("languages", nil, "OCR languages for orientation detection (e.g., eng,deu)")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	pCfg := cfg.PipelineSettings()
	if v, _ := cmd.Flags().GetFloat64("dpi"); v > 0 {
		pCfg.DPI = v
	}
	if v, _ := cmd.Flags().GetInt("max-pages"); v > 0 {
		pCfg.MaxPages = v
	}
	if v, _ := cmd.Flags().GetInt("workers"); v > 0 {
		pCfg.Workers = v
	}
	if v, _ := cmd.Flags().GetBool("no-orientation"); v {
		pCfg.Orientation.Enabled = false
	}
	if v, _ := cmd.Flags().GetBool("heuristic-only"); v {
		pCfg.Orientation.HeuristicOnly = true
	}
	if langs, _ := cmd.Flags().GetStringSlice("languages"); len(langs) > 0 {
		pCfg.Orientation.Languages = langs
	}
	if v, _ := cmd.Flags().GetFloat64("orientation-threshold"); v > 0 {
		pCfg.Orientation.ConfidenceThreshold = v
	}

	outputDir, _ := cmd.Flags().GetString("output")
	stitch, _ := cmd.Flags().GetBool("stitch")

	pl, err := pipeline.NewBuilder().WithConfig(pCfg).Build()
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	defer func() { _ = pl.Close() }()

	store, err := storage.NewLocalStore(outputDir, "")
	if err != nil {
		return fmt.Errorf("failed to open output directory: %w", err)
	}

	for _, filename := range args {
		if err := convertFile(cmd, pl, store, filename, stitch); err != nil {
			return err
		}
	}
	return nil
}

func convertFile(cmd *cobra.Command, pl *pipeline.Pipeline, store *storage.LocalStore,
	filename string, stitch bool,
) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}

	result, err := pl.ProcessDocument(cmd.Context(), filename, data)
	if err != nil {
		return fmt.Errorf("failed to process %s: %w", filename, err)
	}

	// Local output names stay predictable: the uuid suffix used by the
	// server to separate concurrent uploads has no place in a directory
	// the user picked.
	base := storage.SanitizeBaseName(filename)
	out := cmd.OutOrStdout()

	if stitch {
		composite, err := pipeline.Stitch(result.Pages)
		if err != nil {
			return fmt.Errorf("failed to stitch %s: %w", filename, err)
		}
		artifact, err := storage.SaveStitched(cmd.Context(), store, base, composite)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "%s: %d/%d pages -> %s\n",
			filename, result.ProcessedPages, result.TotalPages, artifact.Locator)
	} else {
		artifacts, err := storage.SavePages(cmd.Context(), store, base, result.Pages)
		if err != nil {
			return err
		}
		for _, a := range artifacts {
			_, _ = fmt.Fprintln(out, a.Locator)
		}
	}

	if result.Truncated {
		_, _ = fmt.Fprintf(out, "%s: truncated to the first %d of %d pages\n",
			filename, result.ProcessedPages, result.TotalPages)
	}
	return nil
}
