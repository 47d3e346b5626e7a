package main

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gogpu/darkroom"
)

// Recipe is the YAML edit description read by the CLI.
//
//	rotation: {angle: 90, straighten: 1.5}
//	crop: {x: 0.1, y: 0.1, width: 0.8, height: 0.8}
//	adjustments: {exposure: 0.5, contrast: 20}
//	tone_curve: [{x: 0, y: 0}, {x: 0.5, y: 0.6}, {x: 1, y: 1}]
//	masks:
//	  - {type: radial, center: {x: 0.5, y: 0.5}, radius_x: 0.3, radius_y: 0.3, enabled: true,
//	     adjustments: {exposure: 1}}
//	quality: export
//	backend: auto
//
// Every scalar can be overridden from the environment, for example
// DARKROOM_ADJUSTMENTS_EXPOSURE=1.2 or DARKROOM_BACKEND=cpu.
type Recipe struct {
	Rotation    *RotationConfig   `mapstructure:"rotation"`
	Crop        *CropConfig       `mapstructure:"crop"`
	Adjustments AdjustmentsConfig `mapstructure:"adjustments"`
	ToneCurve   []PointConfig     `mapstructure:"tone_curve"`
	Masks       []MaskConfig      `mapstructure:"masks"`
	Quality     string            `mapstructure:"quality"`
	Backend     string            `mapstructure:"backend"`
}

// RotationConfig is the rotation section: a base angle plus a straighten
// offset, both in degrees.
type RotationConfig struct {
	Angle      float64 `mapstructure:"angle"`
	Straighten float64 `mapstructure:"straighten"`
}

// CropConfig is the crop rectangle in normalized [0,1] coordinates.
type CropConfig struct {
	X      float64 `mapstructure:"x"`
	Y      float64 `mapstructure:"y"`
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

// AdjustmentsConfig holds the global sliders. Masks reuse it for their
// local adjustments.
type AdjustmentsConfig struct {
	Exposure    float64 `mapstructure:"exposure"`
	Contrast    float64 `mapstructure:"contrast"`
	Temperature float64 `mapstructure:"temperature"`
	Tint        float64 `mapstructure:"tint"`
	Highlights  float64 `mapstructure:"highlights"`
	Shadows     float64 `mapstructure:"shadows"`
	Whites      float64 `mapstructure:"whites"`
	Blacks      float64 `mapstructure:"blacks"`
	Saturation  float64 `mapstructure:"saturation"`
	Vibrance    float64 `mapstructure:"vibrance"`
}

// PointConfig is a normalized point, used for tone-curve control points
// and mask geometry.
type PointConfig struct {
	X float64 `mapstructure:"x"`
	Y float64 `mapstructure:"y"`
}

// MaskConfig is one mask entry. Type is "linear" or "radial"; fields
// that do not apply to the type are ignored.
type MaskConfig struct {
	Type        string            `mapstructure:"type"`
	Start       PointConfig       `mapstructure:"start"`
	End         PointConfig       `mapstructure:"end"`
	Center      PointConfig       `mapstructure:"center"`
	RadiusX     float64           `mapstructure:"radius_x"`
	RadiusY     float64           `mapstructure:"radius_y"`
	Rotation    float64           `mapstructure:"rotation"`
	Feather     float64           `mapstructure:"feather"`
	Enabled     bool              `mapstructure:"enabled"`
	Invert      bool              `mapstructure:"invert"`
	Adjustments AdjustmentsConfig `mapstructure:"adjustments"`
}

var adjustmentKeys = []string{
	"exposure", "contrast", "temperature", "tint", "highlights",
	"shadows", "whites", "blacks", "saturation", "vibrance",
}

func setDefaults(v *viper.Viper) {
	for _, k := range adjustmentKeys {
		v.SetDefault("adjustments."+k, 0.0)
	}
	v.SetDefault("quality", "preview")
	v.SetDefault("backend", "auto")
}

// LoadRecipe reads path (YAML) with DARKROOM_* environment overrides. An
// empty path reads only defaults and the environment.
func LoadRecipe(path string) (*Recipe, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DARKROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read recipe: %w", err)
		}
	}

	var r Recipe
	if err := v.Unmarshal(&r); err != nil {
		return nil, fmt.Errorf("decode recipe: %w", err)
	}
	return &r, nil
}

func (a AdjustmentsConfig) adjustments() darkroom.Adjustments {
	return darkroom.Adjustments{
		Exposure:    a.Exposure,
		Contrast:    a.Contrast,
		Temperature: a.Temperature,
		Tint:        a.Tint,
		Highlights:  a.Highlights,
		Shadows:     a.Shadows,
		Whites:      a.Whites,
		Blacks:      a.Blacks,
		Saturation:  a.Saturation,
		Vibrance:    a.Vibrance,
	}
}

func (p PointConfig) point() darkroom.Point { return darkroom.Point{X: p.X, Y: p.Y} }

// Operations converts the recipe into pipeline operations and a backend hint.
func (r *Recipe) Operations() (darkroom.Operations, darkroom.BackendHint, error) {
	var ops darkroom.Operations
	if r.Rotation != nil {
		ops.Rotation = &darkroom.Rotation{Angle: r.Rotation.Angle, Straighten: r.Rotation.Straighten}
	}
	if r.Crop != nil {
		ops.Crop = &darkroom.Crop{X: r.Crop.X, Y: r.Crop.Y, Width: r.Crop.Width, Height: r.Crop.Height}
	}
	if adj := r.Adjustments.adjustments(); !adj.IsIdentity() {
		ops.Adjustments = &adj
	}
	if len(r.ToneCurve) > 0 {
		c := &darkroom.ToneCurve{}
		for _, p := range r.ToneCurve {
			c.Points = append(c.Points, darkroom.CurvePoint{X: p.X, Y: p.Y})
		}
		ops.ToneCurve = c
	}
	for i, m := range r.Masks {
		switch strings.ToLower(m.Type) {
		case "linear":
			ops.Masks = append(ops.Masks, darkroom.LinearMask{
				Start: m.Start.point(), End: m.End.point(), Feather: m.Feather,
				Enabled: m.Enabled, Invert: m.Invert, Adjustments: m.Adjustments.adjustments(),
			})
		case "radial":
			ops.Masks = append(ops.Masks, darkroom.RadialMask{
				Center: m.Center.point(), RadiusX: m.RadiusX, RadiusY: m.RadiusY, Rotation: m.Rotation,
				Feather: m.Feather, Enabled: m.Enabled, Invert: m.Invert, Adjustments: m.Adjustments.adjustments(),
			})
		default:
			return ops, 0, fmt.Errorf("masks[%d]: unknown type %q", i, m.Type)
		}
	}

	switch strings.ToLower(r.Quality) {
	case "", "preview":
		ops.Quality = darkroom.QualityPreview
	case "export":
		ops.Quality = darkroom.QualityExport
	default:
		return ops, 0, fmt.Errorf("unknown quality %q", r.Quality)
	}

	var hint darkroom.BackendHint
	switch strings.ToLower(r.Backend) {
	case "", "auto":
		hint = darkroom.HintAuto
	case "cpu":
		hint = darkroom.HintCPU
	case "gpu":
		hint = darkroom.HintGPU
	default:
		return ops, 0, fmt.Errorf("unknown backend %q", r.Backend)
	}
	return ops, hint, nil
}
