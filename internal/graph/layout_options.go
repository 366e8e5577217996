package graph

const (
	DefaultNodeWidth  = 150
	DefaultNodeHeight = 80
	DefaultHGap       = 30
	DefaultVGap       = 60
	DefaultPadding    = 20
)

// Geometry holds the box and gap sizes shared by node placement and edge
// drawing, so edges always end on node borders.
type Geometry struct {
	NodeWidth  float64 `json:"node_width" yaml:"node_width"`
	NodeHeight float64 `json:"node_height" yaml:"node_height"`
	HGap       float64 `json:"h_gap" yaml:"h_gap"`
	VGap       float64 `json:"v_gap" yaml:"v_gap"`
}

// DefaultGeometry returns the standard node box and gap sizes.
func DefaultGeometry() Geometry {
	return Geometry{
		NodeWidth:  DefaultNodeWidth,
		NodeHeight: DefaultNodeHeight,
		HGap:       DefaultHGap,
		VGap:       DefaultVGap,
	}
}

type layoutConfig struct {
	geometry Geometry
	padding  float64
}

func newLayoutConfig(opts ...LayoutOption) layoutConfig {
	cfg := layoutConfig{
		geometry: DefaultGeometry(),
		padding:  DefaultPadding,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}

// LayoutOption configures Compute
type LayoutOption func(*layoutConfig)

// WithGeometry overrides the node box and gap sizes. Zero or negative
// fields keep their defaults.
func WithGeometry(g Geometry) LayoutOption {
	return func(c *layoutConfig) {
		if g.NodeWidth > 0 {
			c.geometry.NodeWidth = g.NodeWidth
		}
		if g.NodeHeight > 0 {
			c.geometry.NodeHeight = g.NodeHeight
		}
		if g.HGap > 0 {
			c.geometry.HGap = g.HGap
		}
		if g.VGap > 0 {
			c.geometry.VGap = g.VGap
		}
	}
}

// WithPadding sets the margin added around the node boxes in Bounds.
func WithPadding(padding float64) LayoutOption {
	return func(c *layoutConfig) {
		if padding >= 0 {
			c.padding = padding
		}
	}
}
