package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/worldfusion/internal/cellstore"
	"github.com/MeKo-Tech/worldfusion/internal/codec"
	"github.com/MeKo-Tech/worldfusion/internal/mapgen"
	"github.com/MeKo-Tech/worldfusion/internal/scanorchestrator"
	"github.com/MeKo-Tech/worldfusion/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a latitude/longitude range into the CellStore",
	Long:  `Enumerate patches over a region at the given resolution, generate each one, and persist it to the CellStore, resuming from its manifest.`,
	RunE:  runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().Float64("resolution", 3.0, "Patch side length in degrees (3 coarse, 1 fine)")
	scanCmd.Flags().Float64("lat-min", -scanorchestrator.PolarCapLat, "Southern latitude bound")
	scanCmd.Flags().Float64("lat-max", scanorchestrator.PolarCapLat, "Northern latitude bound")
	scanCmd.Flags().Float64("lon-min", -180, "Western longitude bound")
	scanCmd.Flags().Float64("lon-max", 180, "Eastern longitude bound")
	scanCmd.Flags().Int("patch-cols", 32, "Grid columns per patch")
	scanCmd.Flags().Int("patch-rows", 32, "Grid rows per patch")
	scanCmd.Flags().Float64("cell-size-km", 2.0, "Hex cell side length in kilometers")
	scanCmd.Flags().String("overpass-endpoint", "https://overpass-api.de/api/interpreter", "Overpass API endpoint")
	scanCmd.Flags().Int("overpass-workers", 2, "Overpass worker parallelism")
	scanCmd.Flags().String("elevation-endpoint", "", "Batch elevation HTTP endpoint (disabled if empty)")
	scanCmd.Flags().String("landcover-endpoint", "", "Land cover tile HTTP endpoint (disabled if empty)")
	scanCmd.Flags().String("gazetteer-endpoint", "", "Gazetteer SPARQL endpoint (disabled if empty)")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"scan.resolution", "resolution"},
		{"scan.lat_min", "lat-min"},
		{"scan.lat_max", "lat-max"},
		{"scan.lon_min", "lon-min"},
		{"scan.lon_max", "lon-max"},
		{"scan.patch_cols", "patch-cols"},
		{"scan.patch_rows", "patch-rows"},
		{"scan.cell_size_km", "cell-size-km"},
		{"scan.overpass_endpoint", "overpass-endpoint"},
		{"scan.overpass_workers", "overpass-workers"},
		{"scan.elevation_endpoint", "elevation-endpoint"},
		{"scan.landcover_endpoint", "landcover-endpoint"},
		{"scan.gazetteer_endpoint", "gazetteer-endpoint"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, scanCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

// scanPipeline closes over a Generator and turns one patch id into an
// encoded Patch, the shape scanorchestrator.Pipeline expects.
func scanPipeline(gen *mapgen.Generator, cols, rows int, cellSizeKm float64) scanorchestrator.Pipeline {
	return func(ctx context.Context, id types.PatchID) (*types.Patch, error) {
		req := mapgen.Request{BBox: id.BoundingBox(), Cols: cols, Rows: rows, CellSizeKm: cellSizeKm}
		m, genLog, err := gen.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		if genLog.HasError() {
			logger.Warn("patch generated with component errors", "patch", id.String())
		}

		lats := make([]float32, len(m.Cells))
		lons := make([]float32, len(m.Cells))
		for row := 0; row < m.Proj.Rows; row++ {
			for col := 0; col < m.Proj.Cols; col++ {
				lon, lat := m.Proj.CellCenter(col, row)
				i := row*m.Proj.Cols + col
				lats[i] = float32(lat)
				lons[i] = float32(lon)
			}
		}

		return codec.EncodePatch(id.Side, id, m.Cells, lats, lons)
	}
}

func runScan(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	store, err := cellstore.Open(viper.GetString("store"), logger)
	if err != nil {
		return fmt.Errorf("open cellstore: %w", err)
	}
	defer store.Close()

	gen := buildGenerator()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, finishing current patch then stopping")
		cancel()
	}()

	var stopped bool
	cfg := scanorchestrator.Config{
		Store:      store,
		Resolution: viper.GetFloat64("scan.resolution"),
		LatMin:     viper.GetFloat64("scan.lat_min"),
		LatMax:     viper.GetFloat64("scan.lat_max"),
		LonMin:     viper.GetFloat64("scan.lon_min"),
		LonMax:     viper.GetFloat64("scan.lon_max"),
		Run:        scanPipeline(gen, viper.GetInt("scan.patch_cols"), viper.GetInt("scan.patch_rows"), viper.GetFloat64("scan.cell_size_km")),
		ShouldStop: func() bool {
			select {
			case <-ctx.Done():
				stopped = true
				return true
			default:
				return false
			}
		},
	}

	logger.Info("starting scan", "resolution", cfg.Resolution, "lat_range", []float64{cfg.LatMin, cfg.LatMax}, "lon_range", []float64{cfg.LonMin, cfg.LonMax})
	start := time.Now()
	if err := scanorchestrator.Run(ctx, cfg); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	if stopped {
		logger.Info("scan stopped by signal", "elapsed", time.Since(start))
		return nil
	}
	logger.Info("scan complete", "elapsed", time.Since(start))
	return nil
}
