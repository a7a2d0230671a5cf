package capstore

import (
	"fmt"
	"slices"
)

// Style of a cap
type Style string

const (
	StyleBaseballCap  Style = "BASEBALL_CAP"
	StyleFlatCap      Style = "FLAT_CAP"
	StyleSnapback     Style = "SNAPBACK"
	StyleTruckerCap   Style = "TRUCKER_CAP"
	StyleDadCap       Style = "DAD_CAP"
	StyleFittedCap    Style = "FITTED_CAP"
	StyleBeanie       Style = "BEANIE"
	StyleVisor        Style = "VISOR"
	StyleFivePanelCap Style = "FIVE_PANEL_CAP"
)

// Styles lists all valid styles
var Styles = []Style{
	StyleBaseballCap, StyleFlatCap, StyleSnapback, StyleTruckerCap, StyleDadCap,
	StyleFittedCap, StyleBeanie, StyleVisor, StyleFivePanelCap,
}

// Size of a cap
type Size string

const (
	SizeSmall          Size = "SMALL"
	SizeMedium         Size = "MEDIUM"
	SizeLarge          Size = "LARGE"
	SizeExtraLarge     Size = "EXTRA_LARGE"
	SizeOneSizeFitsAll Size = "ONE_SIZE_FITS_ALL"
)

// Sizes lists all valid sizes
var Sizes = []Size{SizeSmall, SizeMedium, SizeLarge, SizeExtraLarge, SizeOneSizeFitsAll}

var sizeLabels = map[Size]string{
	SizeSmall:          "S",
	SizeMedium:         "M",
	SizeLarge:          "L",
	SizeExtraLarge:     "XL",
	SizeOneSizeFitsAll: "One Size Fits All",
}

// Label returns a short, human readable name e.g. "XL"
func (s Size) Label() string {
	return sizeLabels[s]
}

// Gender a cap is made for. GenderNone means not specified.
type Gender string

const (
	GenderNone   Gender = ""
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Cap is a catalog record
type Cap struct {
	// must be > 0 and unique within a store
	ID    int64  `json:"id"`
	Brand string `json:"brand"`
	Style Style  `json:"style"`
	Color string `json:"color"`
	// optional, "" means no collaboration
	Collaboration string  `json:"collaboration,omitempty"`
	Price         float64 `json:"price"`
	Size          Size    `json:"size"`
	// optional
	Gender Gender `json:"gender,omitempty"`
	Stock  int    `json:"stock"`
}

func (c Cap) String() string {
	return fmt.Sprintf("Cap{id=%d, brand='%s', style=%s, color='%s', collaboration='%s', price=%s, size=%s, gender=%s, stock=%d}",
		c.ID, c.Brand, c.Style, c.Color, c.Collaboration, formatPrice(c.Price), c.Size, c.Gender, c.Stock)
}

// ParseStyle returns an error wrapping ErrInvalidArgument for unknown style
func ParseStyle(s string) (Style, error) {
	v := Style(s)
	if !slices.Contains(Styles, v) {
		return "", fmt.Errorf("%w: unknown style '%s'", ErrInvalidArgument, s)
	}
	return v, nil
}

// ParseSize returns an error wrapping ErrInvalidArgument for unknown size
func ParseSize(s string) (Size, error) {
	v := Size(s)
	if _, ok := sizeLabels[v]; !ok {
		return "", fmt.Errorf("%w: unknown size '%s'", ErrInvalidArgument, s)
	}
	return v, nil
}

// ParseGender accepts "" for GenderNone
func ParseGender(s string) (Gender, error) {
	switch v := Gender(s); v {
	case GenderNone, GenderMale, GenderFemale:
		return v, nil
	}
	return "", fmt.Errorf("%w: unknown gender '%s'", ErrInvalidArgument, s)
}

func (s *Style) UnmarshalText(d []byte) error {
	v, err := ParseStyle(string(d))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s *Size) UnmarshalText(d []byte) error {
	v, err := ParseSize(string(d))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (g *Gender) UnmarshalText(d []byte) error {
	v, err := ParseGender(string(d))
	if err != nil {
		return err
	}
	*g = v
	return nil
}
