// Package webapi uploads computed image quality metrics to a remote
// aggregation service. It is a boundary collaborator: the metric core
// knows nothing about it beyond the flat JSON feature mapping.
package webapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	log "github.com/sirupsen/logrus"
)

// metaWhitelist is the fixed set of acquisition-parameter keys accepted
// into the upload payload from the metadata and settings sub-objects.
var metaWhitelist = map[string]bool{
	"ContrastBolusIngredient": true, "RepetitionTime": true, "TaskName": true,
	"Manufacturer": true, "ManufacturersModelName": true,
	"MagneticFieldStrength": true, "DeviceSerialNumber": true,
	"SoftwareVersions": true, "HardcopyDeviceSoftwareVersion": true,
	"ReceiveCoilName": true, "GradientSetType": true,
	"MRTransmitCoilSequence": true, "MatrixCoilMode": true,
	"CoilCombinationMethod": true, "PulseSequenceType": true,
	"PulseSequenceDetails": true, "NumberShots": true,
	"ParallelReductionFactorInPlane": true, "ParallelAcquisitionTechnique": true,
	"PartialFourier": true, "PartialFourierDirection": true,
	"PhaseEncodingDirection": true, "EffectiveEchoSpacing": true,
	"TotalReadoutTime": true, "EchoTime": true, "InversionTime": true,
	"SliceTiming": true, "SliceEncodingDirection": true,
	"NumberOfVolumesDiscardedByScanner": true, "NumberOfVolumesDiscardedByUser": true,
	"DelayTime": true, "FlipAngle": true, "MultibandAccelerationFactor": true,
	"Instructions": true, "TaskDescription": true, "CogAtlasID": true,
	"CogPOID": true, "InstitutionName": true, "InstitutionAddress": true,
	"ConversionSoftware": true, "ConversionSoftwareVersion": true,
	"md5sum": true, "modality": true, "mriqc_pred": true, "software": true,
	"subject_id": true, "version": true,
}

// Settings configures an upload.
type Settings struct {
	// Address is the host of the aggregation service
	Address string

	// Port is the service port
	Port int

	// Token is the shared secret sent in the token header; supplied by
	// the caller, never compiled in
	Token string

	// Email optionally identifies the sender
	Email string

	// Strict escalates any non-201 response to an error
	Strict bool

	// Client overrides the HTTP client, mainly for tests
	Client *http.Client
}

// Result captures the outcome of an upload attempt. Connection failures
// and rejected payloads are reported here rather than as Go errors so a
// batch can continue past them; only strict mode escalates.
type Result struct {
	// StatusCode is the HTTP status, or 1 for local failures
	StatusCode int

	// Text is the response body or the local error message
	Text string
}

// OK reports whether the service accepted the metrics (HTTP 201).
func (r Result) OK() bool { return r.StatusCode == http.StatusCreated }

// Upload reads the IQM JSON file at path and posts it to the aggregation
// service. The metadata sub-object determines the endpoint: its modality
// must be exactly "T1w" or "bold". Metadata and settings entries are
// filtered against the acquisition-parameter whitelist before inclusion.
func Upload(path string, cfg Settings) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{StatusCode: 1, Text: err.Error()}, fmt.Errorf("reading IQMs file: %w", err)
	}

	var in map[string]json.RawMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return Result{StatusCode: 1, Text: err.Error()}, fmt.Errorf("parsing IQMs file: %w", err)
	}

	// Flatten: everything except the reserved sub-objects is the payload
	data := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		if k != "metadata" && k != "settings" {
			data[k] = v
		}
	}

	modality := metadataString(in["metadata"], "modality")
	if modality != "T1w" && modality != "bold" {
		errmsg := fmt.Sprintf(
			"image modality should be %q or %q (found %q)", "T1w", "bold", modality)
		log.Warn(errmsg)
		return Result{StatusCode: 1, Text: errmsg}, nil
	}

	// Filter metadata and settings values against the whitelist
	mergeWhitelisted(data, in["metadata"])
	mergeWhitelisted(data, in["settings"])

	if cfg.Email != "" {
		email, _ := json.Marshal(cfg.Email)
		data["email"] = email
	}

	body, err := json.Marshal(data)
	if err != nil {
		return Result{StatusCode: 1, Text: err.Error()}, fmt.Errorf("encoding payload: %w", err)
	}

	url := fmt.Sprintf("http://%s:%d/%s", cfg.Address, cfg.Port, modality)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{StatusCode: 1, Text: err.Error()}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("token", cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	client := cfg.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		errmsg := fmt.Sprintf("metrics failed to upload due to connection error: %v", err)
		log.Warn(errmsg)
		return Result{StatusCode: 1, Text: errmsg}, nil
	}
	defer resp.Body.Close()

	var text bytes.Buffer
	if _, err := text.ReadFrom(resp.Body); err != nil {
		log.WithError(err).Warn("reading upload response")
	}
	result := Result{StatusCode: resp.StatusCode, Text: text.String()}

	if result.OK() {
		log.Info("QC metrics successfully uploaded")
		return result, nil
	}

	errmsg := fmt.Sprintf("metrics failed to upload, status %d: %s",
		result.StatusCode, result.Text)
	log.Warn(errmsg)
	if cfg.Strict {
		return result, fmt.Errorf("%s", errmsg)
	}
	return result, nil
}

// metadataString pulls a string field out of a raw metadata sub-object.
func metadataString(raw json.RawMessage, key string) string {
	if raw == nil {
		return ""
	}
	var meta map[string]json.RawMessage
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(meta[key], &s); err != nil {
		return ""
	}
	return s
}

// mergeWhitelisted copies whitelisted entries of a raw sub-object into the
// payload.
func mergeWhitelisted(data map[string]json.RawMessage, raw json.RawMessage) {
	if raw == nil {
		return
	}
	var sub map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sub); err != nil {
		return
	}
	for k, v := range sub {
		if metaWhitelist[k] {
			data[k] = v
		}
	}
}
