package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"floodmap/internal/catalog"
	"floodmap/internal/composite"
	"floodmap/internal/config"
	"floodmap/internal/observability"
	"floodmap/internal/pipeline"
	"floodmap/internal/render"
	"floodmap/pkg/geometry"
)

const dateFormat = "2006-01-02"

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a flood mapping analysis",
		Long: `Run one analysis over an area of interest and time window. The area is
given as a bounding box in projected map coordinates; reference points with
a 0/1 flood label drive training and validation.`,
		RunE: runAnalysis,
	}

	cmd.Flags().String("bbox", "", "area of interest as minX,minY,maxX,maxY (required)")
	cmd.Flags().String("start", "", "window start date, YYYY-MM-DD (required)")
	cmd.Flags().String("end", "", "window end date, YYYY-MM-DD (required)")
	cmd.Flags().String("points", "", "GeoJSON file of labeled reference points (required)")
	cmd.Flags().String("label", "", "point property holding the 0/1 flood label (required)")
	cmd.Flags().Int("trees", 0, "classifier tree count (0 = configured default)")
	cmd.Flags().Float64("slope-threshold", -1, "slope exclusion threshold in degrees (-1 = configured default)")
	cmd.Flags().Int("min-patch", -1, "minimum flood patch size in pixels (-1 = configured default)")
	cmd.Flags().String("export", "", "write the final mask as GeoTIFF to this path")
	cmd.Flags().String("quicklook-dir", "", "write PNG quicklooks of the display layers to this directory")

	_ = viper.BindPFlag("run.bbox", cmd.Flags().Lookup("bbox"))
	_ = viper.BindPFlag("run.start", cmd.Flags().Lookup("start"))
	_ = viper.BindPFlag("run.end", cmd.Flags().Lookup("end"))
	_ = viper.BindPFlag("run.points", cmd.Flags().Lookup("points"))
	_ = viper.BindPFlag("run.label", cmd.Flags().Lookup("label"))
	_ = viper.BindPFlag("run.trees", cmd.Flags().Lookup("trees"))
	_ = viper.BindPFlag("run.slope_threshold", cmd.Flags().Lookup("slope-threshold"))
	_ = viper.BindPFlag("run.min_patch", cmd.Flags().Lookup("min-patch"))
	_ = viper.BindPFlag("run.export", cmd.Flags().Lookup("export"))
	_ = viper.BindPFlag("run.quicklook_dir", cmd.Flags().Lookup("quicklook-dir"))

	return cmd
}

func runAnalysis(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}

	params := cfg.Params()

	region, err := parseBBox(viper.GetString("run.bbox"))
	if err != nil {
		return err
	}
	params.Region = region

	window, err := parseWindow(viper.GetString("run.start"), viper.GetString("run.end"))
	if err != nil {
		return err
	}
	params.Window = window

	params.PointsPath = viper.GetString("run.points")
	params.LabelProperty = viper.GetString("run.label")
	params.ExportPath = viper.GetString("run.export")

	if trees := viper.GetInt("run.trees"); trees > 0 {
		params.Trees = trees
	}
	if st := viper.GetFloat64("run.slope_threshold"); st >= 0 {
		params.SlopeThreshold = st
	}
	if mp := viper.GetInt("run.min_patch"); mp >= 0 {
		params.MinPatchPixels = mp
	}

	runner := pipeline.NewRunner(
		catalog.NewDirectoryCatalog(cfg.CatalogRoot),
		pipeline.RunnerOptions{
			Logger:  slog.Default(),
			Metrics: observability.NewMetrics(),
		})

	res, err := runner.Run(cmd.Context(), params)
	if err != nil {
		return fmt.Errorf("[%s] %w", pipeline.CategoryOf(err), err)
	}

	printResults(res)

	if dir := viper.GetString("run.quicklook_dir"); dir != "" {
		if err := writeQuicklooks(dir, res.Layers); err != nil {
			slog.Error("writing quicklooks failed", "error", err)
		}
	}
	if res.ExportErr != nil {
		slog.Error("mask export failed", "error", res.ExportErr)
	}
	return nil
}

func loadConfig() config.Config {
	cfg := config.Default()
	cfg.CatalogRoot = viper.GetString("catalog.root")
	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")

	if v := viper.GetString("catalog.radar"); v != "" {
		cfg.RadarCollection = v
	}
	if v := viper.GetString("catalog.optical"); v != "" {
		cfg.OpticalCollection = v
	}
	if v := viper.GetString("catalog.dem"); v != "" {
		cfg.DEMCollection = v
	}
	if v := viper.GetFloat64("processing.scale"); v > 0 {
		cfg.Scale = v
	}
	if v := viper.GetString("processing.crs"); v != "" {
		cfg.CRS = v
	}
	if v := viper.GetInt64("processing.seed"); v != 0 {
		cfg.Seed = v
	}
	return cfg
}

func parseBBox(s string) (geometry.Polygon, error) {
	if s == "" {
		return geometry.Polygon{}, fmt.Errorf("--bbox is required")
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geometry.Polygon{}, fmt.Errorf("bbox %q must have four comma-separated values", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geometry.Polygon{}, fmt.Errorf("bbox value %q is not a number", p)
		}
		vals[i] = v
	}
	minX, minY, maxX, maxY := vals[0], vals[1], vals[2], vals[3]
	if maxX <= minX || maxY <= minY {
		return geometry.Polygon{}, fmt.Errorf("bbox %q is empty", s)
	}
	return geometry.FromRect(geometry.NewRect(minX, minY, maxX-minX, maxY-minY)), nil
}

func parseWindow(start, end string) (composite.TimeWindow, error) {
	if start == "" || end == "" {
		return composite.TimeWindow{}, fmt.Errorf("--start and --end are required")
	}
	s, err := time.Parse(dateFormat, start)
	if err != nil {
		return composite.TimeWindow{}, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	e, err := time.Parse(dateFormat, end)
	if err != nil {
		return composite.TimeWindow{}, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	return composite.TimeWindow{Start: s, End: e}, nil
}

func printResults(res *pipeline.Results) {
	fmt.Printf("Stack bands: %s\n", strings.Join(res.StackBands, ", "))
	fmt.Printf("Samples: %d training, %d validation\n", res.TrainingSamples, res.ValidationSamples)
	fmt.Println()
	fmt.Println("Confusion matrix (rows: reference, cols: predicted):")
	fmt.Printf("          dry  flood\n")
	fmt.Printf("  dry   %5d  %5d\n", res.Confusion.Counts[0][0], res.Confusion.Counts[0][1])
	fmt.Printf("  flood %5d  %5d\n", res.Confusion.Counts[1][0], res.Confusion.Counts[1][1])
	fmt.Printf("Overall accuracy: %.4f\n", res.Accuracy)
	fmt.Printf("Kappa:            %.4f\n", res.Kappa)
	fmt.Println()
	fmt.Printf("Flooded area: %.2f ha\n", res.FloodAreaHa)
	fmt.Printf("Region area:  %.2f ha\n", res.RegionAreaHa)
}

func writeQuicklooks(dir string, layers []render.Layer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, layer := range layers {
		name := strings.ToLower(strings.ReplaceAll(layer.Name, " ", "_")) + ".png"
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := render.WriteQuicklook(f, layer, render.FormatPNG); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
