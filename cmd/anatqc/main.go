package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"anatqc/internal/models"
	"anatqc/pkg/config"
	"anatqc/pkg/nifti"
	"anatqc/pkg/qc"
	"anatqc/pkg/webapi"
)

func main() {
	// Parse command line arguments
	volumePath := flag.String("volume", "", "Preprocessed structural volume (NIfTI-1)")
	segPath := flag.String("seg", "", "Tissue segmentation (NIfTI-1)")
	pvmPaths := flag.String("pvm", "", "Comma-separated partial volume maps, ordered csf,gm,wm")
	headPath := flag.String("headmask", "", "Head (foreground) mask")
	airPath := flag.String("airmask", "", "Artifact-free air mask")
	artPath := flag.String("artmask", "", "Artifact mask")
	metaPath := flag.String("metadata", "", "Optional JSON file with acquisition metadata")
	configPath := flag.String("config", "anatqc.yaml", "Configuration file")
	outPath := flag.String("out", "iqms.json", "Output JSON filename")
	upload := flag.Bool("upload", false, "Upload the computed metrics to the aggregation service")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	// Validate inputs
	if *volumePath == "" || *segPath == "" || *pvmPaths == "" ||
		*headPath == "" || *airPath == "" || *artPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	in, err := loadInputs(*volumePath, *segPath, *pvmPaths, *headPath, *airPath, *artPath)
	if err != nil {
		log.Fatalf("Failed to load inputs: %v", err)
	}

	opts := qc.DefaultOptions()
	opts.Labels = qc.LabelTable(cfg.Labels)
	opts.Erode = cfg.Metrics.Erode
	opts.QI2.NCoils = cfg.Metrics.NCoils
	opts.QI2.MinVoxels = cfg.Metrics.MinVoxels
	opts.QI2.OutFile = cfg.Metrics.QI2File

	log.Info("Computing image quality metrics...")
	iqms, err := qc.ComputeAll(in, opts)
	if err != nil {
		log.Fatalf("Metric computation failed: %v", err)
	}

	if err := writeIQMs(*outPath, iqms, *metaPath); err != nil {
		log.Fatalf("Failed to write metrics: %v", err)
	}
	log.Infof("Image quality metrics saved to %s", *outPath)

	if *upload {
		token, err := cfg.Token()
		if err != nil {
			log.Fatalf("Upload aborted: %v", err)
		}
		result, err := webapi.Upload(*outPath, webapi.Settings{
			Address: cfg.Upload.Address,
			Port:    cfg.Upload.Port,
			Token:   token,
			Email:   cfg.Upload.Email,
			Strict:  cfg.Upload.Strict,
		})
		if err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		if !result.OK() {
			log.Warnf("Upload not accepted (status %d): %s", result.StatusCode, result.Text)
		}
	}
}

// loadInputs reads the volume and every derived array, checking that they
// share one grid.
func loadInputs(volumePath, segPath, pvmPaths, headPath, airPath, artPath string) (qc.Inputs, error) {
	var in qc.Inputs
	var err error

	if in.Volume, err = nifti.Load(volumePath); err != nil {
		return in, err
	}
	if in.Segmentation, err = nifti.LoadLabels(segPath); err != nil {
		return in, err
	}
	for _, p := range strings.Split(pvmPaths, ",") {
		pvm, err := nifti.Load(strings.TrimSpace(p))
		if err != nil {
			return in, err
		}
		in.PVMs = append(in.PVMs, pvm)
	}
	if in.HeadMask, err = nifti.LoadMask(headPath); err != nil {
		return in, err
	}
	if in.AirMask, err = nifti.LoadMask(airPath); err != nil {
		return in, err
	}
	if in.ArtifactMask, err = nifti.LoadMask(artPath); err != nil {
		return in, err
	}

	err = models.CheckShapes(in.Volume, in.Segmentation,
		[]*models.Mask{in.HeadMask, in.AirMask, in.ArtifactMask}, in.PVMs)
	return in, err
}

// writeIQMs serializes the flat feature mapping, attaching the metadata
// sub-object expected by the aggregation service.
func writeIQMs(path string, iqms map[string]float64, metaPath string) error {
	out := make(map[string]any, len(iqms)+1)
	for k, v := range iqms {
		out[k] = v
	}

	if metaPath != "" {
		raw, err := os.ReadFile(metaPath)
		if err != nil {
			return fmt.Errorf("reading metadata: %w", err)
		}
		var meta map[string]any
		if err := json.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("parsing metadata: %w", err)
		}
		out["metadata"] = meta
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
