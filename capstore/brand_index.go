package capstore

import (
	"fmt"
	"strconv"
	"strings"
)

// BrandIndex lists ids of caps of a given brand in the order they were saved
type BrandIndex struct {
	// always lowercase
	Brand string
	Caps  []int64
}

// NewBrandIndex creates an empty entry for brand. The brand is lowercased.
func NewBrandIndex(brand string) *BrandIndex {
	return &BrandIndex{
		Brand: strings.ToLower(brand),
	}
}

// AppendCap adds id at the end. Ids are never removed.
func (b *BrandIndex) AppendCap(id int64) {
	b.Caps = append(b.Caps, id)
}

// EncodeBrandIndex serializes b as: brand,id1,id2,...
func EncodeBrandIndex(b *BrandIndex) string {
	var sb strings.Builder
	sb.WriteString(b.Brand)
	for _, id := range b.Caps {
		sb.WriteString(fieldSep)
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	return sb.String()
}

// DecodeBrandIndex parses a line created with EncodeBrandIndex.
// Brand can be empty (e.g. ",1,2") since Store.Save doesn't require one.
func DecodeBrandIndex(line string) (*BrandIndex, error) {
	if line == "" {
		return nil, fmt.Errorf("%w: empty brand index line", ErrInvalidArgument)
	}
	parts := strings.Split(line, fieldSep)
	b := NewBrandIndex(parts[0])
	for _, s := range parts[1:] {
		// tolerate a trailing separator
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id '%s' in brand index line '%s'", ErrInvalidArgument, s, line)
		}
		b.AppendCap(id)
	}
	return b, nil
}
