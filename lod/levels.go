package lod

import "fmt"

// TextureQuality is the resolution tier of the globe's surface texture.
type TextureQuality int

const (
	TextureLow TextureQuality = iota
	TextureMedium
	TextureHigh
)

func (q TextureQuality) String() string {
	switch q {
	case TextureLow:
		return "low"
	case TextureMedium:
		return "medium"
	case TextureHigh:
		return "high"
	default:
		return fmt.Sprintf("texture(%d)", int(q))
	}
}

// GeometryLevel is the tessellation tier of the globe sphere.
type GeometryLevel int

const (
	GeometryFar GeometryLevel = iota
	GeometryMedium
	GeometryNear
)

func (g GeometryLevel) String() string {
	switch g {
	case GeometryFar:
		return "far"
	case GeometryMedium:
		return "medium"
	case GeometryNear:
		return "near"
	default:
		return fmt.Sprintf("geometry(%d)", int(g))
	}
}

// Segments returns the sphere subdivision count for the level.
func (g GeometryLevel) Segments() int {
	switch g {
	case GeometryNear:
		return 256
	case GeometryMedium:
		return 128
	default:
		return 64
	}
}

// BorderLevel is the detail tier of the country border overlay.
type BorderLevel int

const (
	BorderLow BorderLevel = iota
	BorderMedium
)

func (b BorderLevel) String() string {
	switch b {
	case BorderLow:
		return "low"
	case BorderMedium:
		return "medium"
	default:
		return fmt.Sprintf("border(%d)", int(b))
	}
}

// Policy bundles the threshold tables of every resource family.
type Policy struct {
	Texture  Table[TextureQuality]
	Geometry Table[GeometryLevel]
	Border   Table[BorderLevel]
	Scale    ScaleRange
}

// Default distance bounds shared by the texture and geometry families.
const (
	NearDistance   = 2.0
	MediumDistance = 4.0
)

// DefaultPolicy returns the stock thresholds: high/near detail at or below
// 2.0 units, medium at or below 4.0, coarse beyond.
func DefaultPolicy() Policy {
	return Policy{
		Texture: MustTable(TextureLow,
			Step[TextureQuality]{MaxDistance: NearDistance, Level: TextureHigh},
			Step[TextureQuality]{MaxDistance: MediumDistance, Level: TextureMedium},
		),
		Geometry: MustTable(GeometryFar,
			Step[GeometryLevel]{MaxDistance: NearDistance, Level: GeometryNear},
			Step[GeometryLevel]{MaxDistance: MediumDistance, Level: GeometryMedium},
		),
		Border: MustTable(BorderLow,
			Step[BorderLevel]{MaxDistance: MediumDistance, Level: BorderMedium},
		),
		Scale: DefaultScaleRange(),
	}
}
