package activity

import (
	"context"
	"fmt"
	"strings"

	"thermofit/pkg/domain"
)

// OutputTag marks activity measurements and keys the family weight.
const OutputTag = "ACR"

// SelectDatasets returns the activity datasets measured within components.
func SelectDatasets(ctx context.Context, src domain.DatasetSource, components []string) ([]domain.Dataset, error) {
	datasets, err := src.Search(ctx, domain.And(
		domain.OutputContains(OutputTag),
		domain.ComponentsSubsetOf(components),
	))
	if err != nil {
		return nil, fmt.Errorf("search activity datasets: %w", err)
	}
	return datasets, nil
}

// ComponentOfInterest extracts the measured component from an output tag
// such as "ACR_CU".
func ComponentOfInterest(output string) (string, error) {
	parts := strings.Split(output, "_")
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", fmt.Errorf("%w: %q", ErrBadOutput, output)
	}
	return strings.ToUpper(strings.TrimSpace(parts[1])), nil
}
