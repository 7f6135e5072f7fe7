package infra

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"head-monitor/app/src/domain"

	"gopkg.in/yaml.v3"
)

const (
	referenceKindBlockTimeAPI = "block_time_api"
	targetKindPortalAPI       = "portal_api"
)

// ErrInvalidMeasurements wraps every validation failure of the measurement file.
var ErrInvalidMeasurements = errors.New("invalid config")

type measurementsFile struct {
	Datasets map[string]*datasetFile `yaml:"datasets"`
}

type datasetFile struct {
	Measurements map[string]*measurementFile `yaml:"measurements"`
}

type measurementFile struct {
	Reference *referenceFile `yaml:"reference"`
	Target    *targetFile    `yaml:"target"`
}

type referenceFile struct {
	Kind string   `yaml:"kind"`
	URLs []string `yaml:"urls"`
}

type targetFile struct {
	Kind        string `yaml:"kind"`
	URL         string `yaml:"url"`
	DatasetKind string `yaml:"dataset_kind"`
}

// LoadMeasurements reads and validates the measurement file at path.
// The result is sorted by dataset, then measurement name.
func LoadMeasurements(path string) ([]domain.Measurement, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absolute)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", absolute)
		}
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	return ParseMeasurements(file)
}

// ParseMeasurements decodes a measurement document from r.
func ParseMeasurements(r io.Reader) ([]domain.Measurement, error) {
	var doc *measurementsFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: must be an object", ErrInvalidMeasurements)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidMeasurements, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: must be an object", ErrInvalidMeasurements)
	}
	if doc.Datasets == nil {
		return nil, fmt.Errorf("%w: datasets must be an object", ErrInvalidMeasurements)
	}

	var measurements []domain.Measurement
	for datasetName, dataset := range doc.Datasets {
		parsed, err := parseDataset(datasetName, dataset)
		if err != nil {
			return nil, err
		}
		measurements = append(measurements, parsed...)
	}

	sort.Slice(measurements, func(i, j int) bool {
		if measurements[i].ID.Dataset != measurements[j].ID.Dataset {
			return measurements[i].ID.Dataset < measurements[j].ID.Dataset
		}
		return measurements[i].ID.Name < measurements[j].ID.Name
	})
	return measurements, nil
}

func parseDataset(datasetName string, dataset *datasetFile) ([]domain.Measurement, error) {
	if dataset == nil {
		return nil, fmt.Errorf("%w: dataset %s must be an object", ErrInvalidMeasurements, datasetName)
	}
	if dataset.Measurements == nil {
		return nil, fmt.Errorf("%w: dataset %s: measurements must be an object", ErrInvalidMeasurements, datasetName)
	}
	if len(dataset.Measurements) == 0 {
		return nil, fmt.Errorf("%w: dataset %s must have at least one measurement", ErrInvalidMeasurements, datasetName)
	}

	result := make([]domain.Measurement, 0, len(dataset.Measurements))
	for measurementName, raw := range dataset.Measurements {
		measurement, err := parseMeasurement(datasetName, measurementName, raw)
		if err != nil {
			return nil, err
		}
		result = append(result, measurement)
	}
	return result, nil
}

func parseMeasurement(datasetName, measurementName string, raw *measurementFile) (domain.Measurement, error) {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: measurement %s in dataset %s: %s", ErrInvalidMeasurements, measurementName, datasetName, reason)
	}

	if raw == nil {
		return domain.Measurement{}, invalid("must be an object")
	}
	if raw.Reference == nil || raw.Reference.Kind != referenceKindBlockTimeAPI {
		return domain.Measurement{}, invalid("reference must be of kind 'block_time_api'")
	}
	if len(raw.Reference.URLs) == 0 {
		return domain.Measurement{}, invalid("reference urls must be a non-empty array")
	}
	if raw.Target == nil || raw.Target.Kind != targetKindPortalAPI {
		return domain.Measurement{}, invalid("target must be of kind 'portal_api'")
	}
	if strings.TrimSpace(raw.Target.URL) == "" {
		return domain.Measurement{}, invalid("target url must be a string")
	}

	urls := make([]string, 0, len(raw.Reference.URLs))
	for _, u := range raw.Reference.URLs {
		trimmed := domain.TrimURL(u)
		if trimmed == "" {
			return domain.Measurement{}, invalid("reference urls must not be empty")
		}
		urls = append(urls, trimmed)
	}

	kind := domain.DatasetKind(strings.TrimSpace(raw.Target.DatasetKind))
	if kind == "" {
		kind = domain.DefaultDatasetKind
	}
	if !kind.Valid() {
		known := make([]string, 0, len(domain.KnownDatasetKinds()))
		for _, k := range domain.KnownDatasetKinds() {
			known = append(known, string(k))
		}
		return domain.Measurement{}, invalid(fmt.Sprintf("unknown dataset_kind %q, expected one of: %s", string(kind), strings.Join(known, ", ")))
	}

	return domain.Measurement{
		ID:        domain.MeasurementID{Dataset: datasetName, Name: measurementName},
		Target:    domain.Target{URL: domain.TrimURL(raw.Target.URL), Kind: kind},
		Reference: domain.Reference{URLs: urls},
	}, nil
}
