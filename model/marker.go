package model

import (
	"fmt"
	"math"
	"strings"

	"github.com/signalsfoundry/globeview/core"
)

// MarkerRadius lifts markers just above the globe surface.
const MarkerRadius = 1.005

// Category classifies a marker for styling.
type Category string

const (
	CategoryCapital Category = "capital"
	CategoryMajor   Category = "major"
	CategoryCity    Category = "city"
	CategoryVillage Category = "village"
)

// Categories lists every known category, largest first.
func Categories() []Category {
	return []Category{CategoryCapital, CategoryMajor, CategoryCity, CategoryVillage}
}

// ParseCategory maps a dataset type string to a category. Unknown or empty
// types fall back to city.
func ParseCategory(s string) Category {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategoryCapital, CategoryMajor, CategoryCity, CategoryVillage:
		return c
	default:
		return CategoryCity
	}
}

// Label is the human-readable category name.
func (c Category) Label() string {
	switch c {
	case CategoryCapital:
		return "Capital"
	case CategoryMajor:
		return "Major City"
	case CategoryVillage:
		return "Town/Village"
	default:
		return "City"
	}
}

// Visual is the render configuration of a category.
type Visual struct {
	Color uint32  `json:"color"`
	Size  float64 `json:"size"`
}

// VisualFor returns the base colour and size for c.
func VisualFor(c Category) Visual {
	switch c {
	case CategoryCapital:
		return Visual{Color: 0xff3333, Size: 0.015}
	case CategoryMajor:
		return Visual{Color: 0xff8c42, Size: 0.012}
	case CategoryVillage:
		return Visual{Color: 0x90ee90, Size: 0.008}
	default:
		return Visual{Color: 0xffd700, Size: 0.010}
	}
}

// Marker is a labeled point on the globe. It is immutable once stored.
type Marker struct {
	Name       string   `json:"name"`
	Country    string   `json:"country"`
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Category   Category `json:"type"`
	Population int64    `json:"population,omitempty"`
}

// Validate checks the coordinates and name.
func (m Marker) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("marker: empty name")
	}
	if !finite(m.Lat) || !finite(m.Lon) {
		return fmt.Errorf("marker %q: non-finite position (%v, %v)", m.Name, m.Lat, m.Lon)
	}
	if m.Lat < -90 || m.Lat > 90 {
		return fmt.Errorf("marker %q: latitude %v out of range", m.Name, m.Lat)
	}
	if m.Lon < -180 || m.Lon > 180 {
		return fmt.Errorf("marker %q: longitude %v out of range", m.Name, m.Lon)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LatLon returns the marker position.
func (m Marker) LatLon() core.LatLon {
	return core.LatLon{Lat: m.Lat, Lon: m.Lon}
}

// Position returns the marker's scene position.
func (m Marker) Position() core.Vec3 {
	return core.ToCartesian(m.Lat, m.Lon, MarkerRadius)
}
