package display

import (
	"image/color"

	"golang.org/x/image/colornames"
	"golang.org/x/image/font"
)

type OutlineStyle struct {
	Color      color.Color
	Selectable bool
	Width      float64
}

type LabelStyle struct {
	FontSize     float64
	Weight       font.Weight
	Color        color.Color
	OutlineColor color.Color
	OutlineWidth float64
}

// DefaultOutlineStyle is shared by every region outline.
func DefaultOutlineStyle() OutlineStyle {
	return OutlineStyle{
		Color:      colornames.White,
		Selectable: true,
		Width:      4.0,
	}
}

// DefaultLabelStyle is bold 24pt white text with a 2pt black halo.
func DefaultLabelStyle() LabelStyle {
	return LabelStyle{
		FontSize:     24.0,
		Weight:       font.WeightBold,
		Color:        colornames.White,
		OutlineColor: colornames.Black,
		OutlineWidth: 2.0,
	}
}
