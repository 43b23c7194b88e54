// Package cmd /*
package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"swath2grid/gridio"
	"swath2grid/grids"
	"swath2grid/project"
	"swath2grid/rastore"
	"swath2grid/remap"
	"swath2grid/swath"
)

var gridName string
var methodName string
var workers int
var keepIntermediate bool
var overwriteExisting bool
var exitOnError bool
var noShareGrids bool

// remapCmd represents the remap command
var remapCmd = &cobra.Command{
	Use:   "remap",
	Short: "Resample a swath scene onto a named grid",
	Long: `Resample every product in a swath scene manifest onto a target
	grid and write the gridded results.

	The scene manifest is a JSON file naming the flat binary geolocation and
	product arrays produced by an instrument frontend. Products sharing a
	geolocation surface are projected once and resampled together.

	Options:
		--grid:    Target grid name from the registry (or --grid-config file).
		--method:  'ewa' for scanning instruments (default), or 'nearest'.
		--workers: Worker pool size for the EWA kernel. 0 runs synchronously.
		--format:  Output format: gtiff, binary, parquet, csv`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevels()

		method, err := remap.ParseMethod(methodName)
		if err != nil {
			logrus.Fatal(err)
		}

		registry := grids.NewRegistry()
		if cfg := viper.GetString("gridConfig"); cfg != "" {
			if err := registry.LoadFile(cfg); err != nil {
				logrus.Fatal(err)
			}
		}

		store, err := rastore.NewFileStore(viper.GetString("workDir"))
		if err != nil {
			logrus.Fatal(err)
		}
		scene, err := swath.LoadScene(args[0], store)
		if err != nil {
			logrus.Fatal(err)
		}

		opts := remap.Options{
			Method:             method,
			KeepIntermediate:   keepIntermediate,
			OverwriteExisting:  overwriteExisting,
			ExitOnError:        exitOnError,
			ShareDynamicGrids:  !noShareGrids,
			WeightDeltaMax:     viper.GetFloat64("weightDeltaMax"),
			WeightDistanceMax:  viper.GetFloat64("weightDistanceMax"),
			MaximumWeight:      viper.GetBool("maximumWeight"),
			Workers:            workers,
			DistanceUpperBound: viper.GetFloat64("distanceUpperBound"),
			Interp1D:           viper.GetString("interp1d"),
		}

		orch := remap.New(store, registry, project.Proj4Projector{})
		gridded, results, err := orch.RemapScene(scene, gridName, opts)
		if err != nil {
			logrus.Fatal(err)
		}
		for _, res := range results {
			if res.Err != nil {
				logrus.Errorf("swath %q failed: %v", res.Swath, res.Err)
			}
		}

		write := chooseWriter(viper.GetString("format"))
		for _, p := range gridded.Products() {
			out := filepath.Join(args[1], fmt.Sprintf("%s_%s%s", gridName, p.Name, formatExt(viper.GetString("format"))))
			if err := write(p, out); err != nil {
				logrus.Fatal(err)
			}
			logrus.Infof("wrote %s", out)
		}
		if gridded.Len() == 0 {
			logrus.Warn("no products were remapped")
		}
	},
}

func chooseWriter(format string) func(*swath.GriddedProduct, string) error {
	switch format {
	case "binary":
		return gridio.WriteBinary
	case "parquet":
		return gridio.WriteParquet
	case "csv":
		return gridio.WriteCSV
	case "gtiff":
		return gridio.WriteGeoTIFF
	default:
		logrus.Warnf("Output format %s not recognized, using gtiff", format)
		return gridio.WriteGeoTIFF
	}
}

func formatExt(format string) string {
	switch format {
	case "binary":
		return ".dat"
	case "parquet":
		return ".parquet"
	case "csv":
		return ".csv"
	default:
		return ".tif"
	}
}

func setLogLevels() {
	if viper.GetBool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	} else if viper.GetBool("verbose") {
		logrus.SetLevel(logrus.InfoLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func init() {
	rootCmd.AddCommand(remapCmd)

	remapCmd.Flags().StringVarP(&gridName, "grid", "g", "wgs84_fit", "Target grid name")
	err := viper.BindPFlag("grid", remapCmd.Flags().Lookup("grid"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().StringVarP(&methodName, "method", "m", "ewa", "Resampling method: ewa or nearest")
	err = viper.BindPFlag("method", remapCmd.Flags().Lookup("method"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().IntVarP(&workers, "workers", "n", 0, "Worker pool size for EWA kernel invocations. 0 runs synchronously")
	err = viper.BindPFlag("workers", remapCmd.Flags().Lookup("workers"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().BoolVar(&keepIntermediate, "keep-intermediate", false, "Keep projection and scratch files")
	err = viper.BindPFlag("keepIntermediate", remapCmd.Flags().Lookup("keep-intermediate"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().BoolVar(&overwriteExisting, "overwrite", false, "Overwrite colliding intermediate files")
	err = viper.BindPFlag("overwrite", remapCmd.Flags().Lookup("overwrite"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().BoolVar(&exitOnError, "exit-on-error", false, "Abort the whole run on the first group failure")
	err = viper.BindPFlag("exitOnError", remapCmd.Flags().Lookup("exit-on-error"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().BoolVar(&noShareGrids, "no-share-grids", false, "Fit dynamic grid parameters per swath group instead of sharing")
	err = viper.BindPFlag("noShareGrids", remapCmd.Flags().Lookup("no-share-grids"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().Float64("weight-delta-max", 0, "EWA footprint search radius in grid cells. 0 derives from limb resolution")
	err = viper.BindPFlag("weightDeltaMax", remapCmd.Flags().Lookup("weight-delta-max"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().Float64("weight-distance-max", 0, "EWA ellipse scale factor. 0 uses the kernel default")
	err = viper.BindPFlag("weightDistanceMax", remapCmd.Flags().Lookup("weight-distance-max"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().Bool("maximum-weight", false, "Keep the highest-weight sample per cell instead of averaging")
	err = viper.BindPFlag("maximumWeight", remapCmd.Flags().Lookup("maximum-weight"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().Float64("distance-upper-bound", 0, "Nearest-neighbor search radius in grid cells. 0 derives from limb resolution")
	err = viper.BindPFlag("distanceUpperBound", remapCmd.Flags().Lookup("distance-upper-bound"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().String("interp1d", "linear", "1-D fallback interpolation: linear, cubic, or nearest")
	err = viper.BindPFlag("interp1d", remapCmd.Flags().Lookup("interp1d"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().StringP("format", "f", "gtiff", "Output format: gtiff, binary, parquet, csv")
	err = viper.BindPFlag("format", remapCmd.Flags().Lookup("format"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().String("work-dir", ".", "Directory for intermediate and output arrays")
	err = viper.BindPFlag("workDir", remapCmd.Flags().Lookup("work-dir"))
	if err != nil {
		logrus.Exit(1)
	}

	remapCmd.Flags().String("grid-config", "", "YAML file with additional grid definitions")
	err = viper.BindPFlag("gridConfig", remapCmd.Flags().Lookup("grid-config"))
	if err != nil {
		logrus.Exit(1)
	}
}
