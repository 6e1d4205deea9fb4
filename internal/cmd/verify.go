package cmd

import (
	"fmt"
	"time"

	"github.com/MeKo-Tech/worldfusion/internal/cellstore"
	"github.com/MeKo-Tech/worldfusion/internal/scanorchestrator"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var expectedPhases = []string{"elevation", "landcover", "vector", "gazetteer", "classify", "postprocess", "encode"}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a completed or in-progress scan",
	Long:  `Spot-check CRCs, cell counts and phase completeness for a resolution's manifest and report any uncovered zones.`,
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)

	verifyCmd.Flags().Float64("resolution", 3.0, "Patch side length in degrees (3 coarse, 1 fine)")
	verifyCmd.Flags().Float64("lat-min", -scanorchestrator.PolarCapLat, "Southern latitude bound")
	verifyCmd.Flags().Float64("lat-max", scanorchestrator.PolarCapLat, "Northern latitude bound")
	verifyCmd.Flags().Float64("lon-min", -180, "Western longitude bound")
	verifyCmd.Flags().Float64("lon-max", 180, "Eastern longitude bound")
	verifyCmd.Flags().Duration("stale-after", 2*time.Hour, "An in_progress patch older than this is reported stale")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"verify.resolution", "resolution"},
		{"verify.lat_min", "lat-min"},
		{"verify.lat_max", "lat-max"},
		{"verify.lon_min", "lon-min"},
		{"verify.lon_max", "lon-max"},
		{"verify.stale_after", "stale-after"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, verifyCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	store, err := cellstore.Open(viper.GetString("store"), logger)
	if err != nil {
		return fmt.Errorf("open cellstore: %w", err)
	}
	defer store.Close()

	report, err := scanorchestrator.VerifyScan(
		store,
		viper.GetFloat64("verify.resolution"),
		viper.GetFloat64("verify.lat_min"), viper.GetFloat64("verify.lat_max"),
		viper.GetFloat64("verify.lon_min"), viper.GetFloat64("verify.lon_max"),
		expectedPhases,
		viper.GetDuration("verify.stale_after"),
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	logger.Info("verify complete",
		"checked", report.Checked,
		"crc_mismatches", len(report.CRCMismatches),
		"cell_count_mismatches", len(report.CellCountMismatches),
		"field_errors", len(report.FieldErrors),
		"stale_in_progress", len(report.StaleInProgress),
		"incomplete_phases", len(report.IncompletePhases),
		"uncovered_zones", len(report.UncoveredZones),
	)

	for _, key := range report.CRCMismatches {
		fmt.Printf("CRC MISMATCH: %s\n", key)
	}
	for _, key := range report.CellCountMismatches {
		fmt.Printf("CELL COUNT MISMATCH: %s\n", key)
	}
	for key, errs := range report.FieldErrors {
		for _, e := range errs {
			fmt.Printf("FIELD ERROR: %s: %s\n", key, e)
		}
	}
	for _, key := range report.StaleInProgress {
		fmt.Printf("STALE IN-PROGRESS: %s\n", key)
	}
	for _, key := range report.IncompletePhases {
		fmt.Printf("INCOMPLETE PHASES: %s\n", key)
	}
	for _, zone := range report.UncoveredZones {
		fmt.Printf("UNCOVERED ZONE: %s\n", zone)
	}

	if len(report.CRCMismatches) > 0 || len(report.CellCountMismatches) > 0 || len(report.FieldErrors) > 0 {
		return fmt.Errorf("verify found %d CRC mismatches, %d cell count mismatches, %d field errors",
			len(report.CRCMismatches), len(report.CellCountMismatches), len(report.FieldErrors))
	}
	return nil
}
