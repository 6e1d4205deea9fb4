package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Christian/go-overpass"
	"github.com/MeKo-Tech/worldfusion/internal/elevation"
	"github.com/MeKo-Tech/worldfusion/internal/gazetteer"
	"github.com/MeKo-Tech/worldfusion/internal/landcover"
	"github.com/MeKo-Tech/worldfusion/internal/mapgen"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a fused hex-grid map",
	Long:  `Generate a single fused hex-grid map for a bounding box and print its JSON document.`,
	RunE:  runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().String("bbox", "", "Bounding box: south,west,north,east (e.g. \"52.3,9.7,52.4,9.9\")")
	generateCmd.Flags().Int("cols", 64, "Grid columns")
	generateCmd.Flags().Int("rows", 64, "Grid rows")
	generateCmd.Flags().Float64("cell-size-km", 2.0, "Hex cell side length in kilometers")
	generateCmd.Flags().String("overpass-endpoint", "https://overpass-api.de/api/interpreter", "Overpass API endpoint")
	generateCmd.Flags().Int("overpass-workers", 2, "Overpass worker parallelism")
	generateCmd.Flags().String("elevation-endpoint", "", "Batch elevation HTTP endpoint (disabled if empty)")
	generateCmd.Flags().String("landcover-endpoint", "", "Land cover tile HTTP endpoint (disabled if empty)")
	generateCmd.Flags().String("gazetteer-endpoint", "", "Gazetteer SPARQL endpoint (disabled if empty)")
	generateCmd.Flags().String("out", "", "Output file path (stdout if empty)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"generate.bbox", "bbox"},
		{"generate.cols", "cols"},
		{"generate.rows", "rows"},
		{"generate.cell_size_km", "cell-size-km"},
		{"generate.overpass_endpoint", "overpass-endpoint"},
		{"generate.overpass_workers", "overpass-workers"},
		{"generate.elevation_endpoint", "elevation-endpoint"},
		{"generate.landcover_endpoint", "landcover-endpoint"},
		{"generate.gazetteer_endpoint", "gazetteer-endpoint"},
		{"generate.out", "out"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, generateCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// parseBBox parses "south,west,north,east" into a BoundingBox.
func parseBBox(s string) (types.BoundingBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return types.BoundingBox{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	vals := make([]float64, 4)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return types.BoundingBox{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		vals[i] = v
	}
	bbox := types.BoundingBox{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}
	if !bbox.Valid() {
		return types.BoundingBox{}, fmt.Errorf("bbox %s is not well-formed (south<=north, west<=east)", s)
	}
	return bbox, nil
}

// buildGenerator wires a Generator from the generate flags; any endpoint
// left empty disables that stage (mapgen.Generator's nil-field fallbacks,
// spec.md §7).
func buildGenerator() *mapgen.Generator {
	gen := &mapgen.Generator{}

	if endpoint := viper.GetString("generate.elevation_endpoint"); endpoint != "" {
		provider := elevation.NewHTTPProvider("primary", endpoint, http.DefaultClient)
		gen.Elevation = elevation.New([]elevation.Provider{provider}, logger)
	}

	if endpoint := viper.GetString("generate.landcover_endpoint"); endpoint != "" {
		gen.LandCover = landcover.New(landcover.NewHTTPTileSource(endpoint), logger)
	}

	workers := viper.GetInt("generate.overpass_workers")
	if workers < 1 {
		workers = 2
	}
	retryCfg := overpass.DefaultRetryConfig()
	overpassClient := overpass.NewWithRetry(viper.GetString("generate.overpass_endpoint"), workers, http.DefaultClient, retryCfg)
	gen.VectorClient = overpassClient

	if endpoint := viper.GetString("generate.gazetteer_endpoint"); endpoint != "" {
		gen.Gazetteer = gazetteer.New(endpoint, http.DefaultClient, logger)
	}

	return gen
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	bboxStr := viper.GetString("generate.bbox")
	if bboxStr == "" {
		return fmt.Errorf("--bbox is required")
	}
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}

	req := mapgen.Request{
		BBox:       bbox,
		Cols:       viper.GetInt("generate.cols"),
		Rows:       viper.GetInt("generate.rows"),
		CellSizeKm: viper.GetFloat64("generate.cell_size_km"),
	}

	logger.Info("starting map generation", "bbox", bboxStr, "cols", req.Cols, "rows", req.Rows, "cell_size_km", req.CellSizeKm)

	gen := buildGenerator()
	m, genLog, err := gen.Generate(cmd.Context(), req)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	if genLog.HasError() {
		logger.Warn("generation completed with component errors, see log for detail")
	}
	fmt.Fprint(os.Stderr, genLog.Export())

	doc, err := m.ToJSON(time.Now(), "worldfusion generate")
	if err != nil {
		return fmt.Errorf("encode map JSON: %w", err)
	}

	outPath := viper.GetString("generate.out")
	if outPath == "" {
		fmt.Println(string(doc))
		return nil
	}
	if err := os.WriteFile(outPath, doc, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	logger.Info("map written", "path", outPath, "cells", len(m.Cells))
	return nil
}
