package qc

import (
	"fmt"
	"sync"

	"anatqc/internal/models"
)

// Inputs bundles the aligned arrays produced by the upstream segmentation
// pipeline for one subject.
type Inputs struct {
	// Volume is the intensity volume the metrics are computed on
	Volume *models.Volume

	// Segmentation is the discrete tissue segmentation
	Segmentation *models.Labels

	// PVMs are the partial volume maps, ordered to match the label codes
	// (csf, gm, wm), optionally with an explicit background map first
	PVMs []*models.Volume

	// HeadMask selects the head (foreground) region
	HeadMask *models.Mask

	// AirMask selects artifact-free air around the head
	AirMask *models.Mask

	// ArtifactMask selects air voxels corrupted by artifacts
	ArtifactMask *models.Mask
}

// Options configures a ComputeAll run.
type Options struct {
	// Labels is the tissue label table
	Labels LabelTable

	// Erode applies morphological cleanup to tissue masks before the
	// SNR-family statistics
	Erode bool

	// QI2 configures the background noise fit
	QI2 QI2Options
}

// DefaultOptions mirrors the upstream defaults.
func DefaultOptions() Options {
	return Options{
		Labels: DefaultLabels(),
		Erode:  true,
		QI2:    DefaultQI2Options(),
	}
}

// ComputeAll runs the full metric catalog and assembles the flat
// name-to-value feature mapping. The independent metrics are computed
// concurrently; they are pure and share no mutable state. The first
// contract violation aborts the aggregate.
func ComputeAll(in Inputs, opts Options) (map[string]float64, error) {
	if err := models.CheckShapes(in.Volume, in.Segmentation,
		[]*models.Mask{in.HeadMask, in.AirMask, in.ArtifactMask}, in.PVMs); err != nil {
		return nil, err
	}

	segVol := segVolume(in.Segmentation)
	airVol := maskVolume(in.AirMask)

	type partial struct {
		values map[string]float64
		err    error
	}
	results := make(chan partial)

	var wg sync.WaitGroup
	run := func(f func() (map[string]float64, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			values, err := f()
			results <- partial{values: values, err: err}
		}()
	}

	run(func() (map[string]float64, error) {
		out := make(map[string]float64)
		for _, tissue := range opts.Labels.Tissues() {
			v, err := SNR(in.Volume, segVol, Named(tissue), opts.Labels, opts.Erode)
			if err != nil {
				return nil, fmt.Errorf("snr_%s: %w", tissue, err)
			}
			out["snr_"+tissue] = v

			d, err := SNRDietrich(in.Volume, segVol, airVol, Named(tissue), opts.Labels, opts.Erode)
			if err != nil {
				return nil, fmt.Errorf("snr_d_%s: %w", tissue, err)
			}
			out["snr_d_"+tissue] = d
		}
		return out, nil
	})

	run(func() (map[string]float64, error) {
		cjv, err := CJV(in.Volume, in.Segmentation, nil, nil, opts.Labels)
		if err != nil {
			return nil, fmt.Errorf("cjv: %w", err)
		}
		return map[string]float64{
			"cnr":    CNR(in.Volume, in.Segmentation, opts.Labels),
			"cjv":    cjv,
			"wm2max": WM2Max(in.Volume, in.Segmentation, opts.Labels),
		}, nil
	})

	run(func() (map[string]float64, error) {
		return map[string]float64{
			"fber": FBER(in.Volume, in.HeadMask),
			"efc":  EFC(in.Volume),
		}, nil
	})

	run(func() (map[string]float64, error) {
		qi2, _, err := ArtifactsQI2(in.Volume, in.AirMask, opts.QI2)
		if err != nil {
			return nil, fmt.Errorf("qi_2: %w", err)
		}
		return map[string]float64{
			"qi_1": ArtifactsQI1(in.AirMask, in.ArtifactMask),
			"qi_2": qi2,
		}, nil
	})

	run(func() (map[string]float64, error) {
		out := make(map[string]float64)
		icvs, err := VolumeFraction(in.PVMs, opts.Labels)
		if err != nil {
			return nil, fmt.Errorf("icvs: %w", err)
		}
		for k, v := range icvs {
			out["icvs_"+k] = v
		}

		rpve, err := RPVE(in.PVMs, in.Segmentation, opts.Labels)
		if err != nil {
			return nil, fmt.Errorf("rpve: %w", err)
		}
		for k, v := range rpve {
			out["rpve_"+k] = v
		}

		summary, err := SummaryStats(in.Volume, in.PVMs, nil, opts.Labels)
		if err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		for k, s := range summary {
			out["summary_"+k+"_mean"] = s.Mean
			out["summary_"+k+"_stdv"] = s.Stdv
			out["summary_"+k+"_p95"] = s.P95
			out["summary_"+k+"_p05"] = s.P05
			out["summary_"+k+"_k"] = s.Kurtosis
		}
		return out, nil
	})

	go func() {
		wg.Wait()
		close(results)
	}()

	iqms := make(map[string]float64)
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		for k, v := range r.values {
			iqms[k] = v
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return iqms, nil
}

// segVolume widens a segmentation to a float volume so it can flow through
// the integral-dispatch path of PrepareMask
func segVolume(seg *models.Labels) *models.Volume {
	out := models.NewVolume(seg.Nx, seg.Ny, seg.Nz)
	for i, v := range seg.Data {
		out.Data[i] = float64(v)
	}
	return out
}

// maskVolume widens a binary mask to a float volume of {0,1}
func maskVolume(m *models.Mask) *models.Volume {
	out := models.NewVolume(m.Nx, m.Ny, m.Nz)
	for i, v := range m.Data {
		out.Data[i] = float64(v)
	}
	return out
}
