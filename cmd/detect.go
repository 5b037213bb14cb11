package cmd

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/lehigh-university-libraries/platereader/internal/imageproc"
	"github.com/lehigh-university-libraries/platereader/internal/pipeline"
	"github.com/spf13/cobra"
)

func newDetectCmd(opts *rootOptions) *cobra.Command {
	var (
		outputDir string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "detect IMAGE",
		Short: "Detect and read license plates in a single image",
		Example: `  # Print the plates found in a photo
  platereader detect car.jpg

  # Also write crops and annotated images
  platereader detect car.jpg --output ./out`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			img, err := imageproc.Decode(f)
			f.Close()
			if err != nil {
				return err
			}

			orchestrator, closeEngine, err := buildPipeline(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeEngine()

			outcome, err := orchestrator.Process(cmd.Context(), img)
			if err != nil {
				return err
			}

			if outputDir != "" {
				if err := writeOutputs(outputDir, args[0], outcome); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"state":   outcome.State,
					"message": outcome.Message,
					"results": outcome.Results,
				})
			}

			if outcome.State == pipeline.NoPlateFound {
				fmt.Fprintln(out, outcome.Message)
				return nil
			}
			for i, r := range outcome.Results {
				text := r.Text
				if text == "" {
					text = pipeline.EmptyTextMarker
				}
				fmt.Fprintf(out, "plate %d [%d,%d,%d,%d] %s (%.2f)", i, r.Box.X1, r.Box.Y1, r.Box.X2, r.Box.Y2, text, r.Confidence)
				if r.Error != "" {
					fmt.Fprintf(out, " error: %s", r.Error)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Directory to write crops and annotated images to")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

func writeOutputs(dir, source string, outcome pipeline.Outcome) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))

	for i, r := range outcome.Results {
		outputs := []struct {
			kind string
			img  image.Image
		}{
			{"crop", r.Crop},
			{"annotated", r.Annotated},
		}
		for _, o := range outputs {
			if o.img == nil {
				continue
			}
			data, err := imageproc.EncodePNG(o.img)
			if err != nil {
				return err
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_plate%d_%s.png", base, i, o.kind))
			if err := os.WriteFile(path, data, 0644); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			slog.Info("Wrote image", "path", path)
		}
	}
	return nil
}
