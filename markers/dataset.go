package markers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/globeview/internal/fetch"
	"github.com/signalsfoundry/globeview/model"
)

// LoadDataset reads a JSON array of {name, country, lat, lon, type,
// population?} records.
func LoadDataset(ctx context.Context, f fetch.Fetcher, uri string) ([]model.Marker, error) {
	data, err := f.Fetch(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("load markers: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes marker records and validates each one.
func ParseDataset(data []byte) ([]model.Marker, error) {
	var records []model.Marker
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode markers: %w", err)
	}
	for i := range records {
		records[i].Category = model.ParseCategory(string(records[i].Category))
		if err := records[i].Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}
