package capstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	fieldSep = ","
	// marks an absent optional field
	absentField = "-"

	capFieldCount = 9
)

// formatPrice returns the canonical form of a price: the shortest decimal
// that parses back to p, without exponent, always with a fractional part.
// 45000 => "45000.0", 1.2345678e7 => "12345678.0"
// Lines with non-canonical prices ("45000", "45000.00") decode fine but
// re-encode canonically.
func formatPrice(p float64) string {
	s := strconv.FormatFloat(p, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func optionalField(s string) string {
	if s == "" {
		return absentField
	}
	return s
}

// EncodeCap serializes c as a single line (without a newline):
// id,style,color,brand,collaboration,price,size,gender,stock
// absent collaboration and gender are written as "-"
func EncodeCap(c *Cap) string {
	var sb strings.Builder
	sb.WriteString(strconv.FormatInt(c.ID, 10))
	sb.WriteString(fieldSep)
	sb.WriteString(string(c.Style))
	sb.WriteString(fieldSep)
	sb.WriteString(c.Color)
	sb.WriteString(fieldSep)
	sb.WriteString(c.Brand)
	sb.WriteString(fieldSep)
	sb.WriteString(optionalField(c.Collaboration))
	sb.WriteString(fieldSep)
	sb.WriteString(formatPrice(c.Price))
	sb.WriteString(fieldSep)
	sb.WriteString(string(c.Size))
	sb.WriteString(fieldSep)
	sb.WriteString(optionalField(string(c.Gender)))
	sb.WriteString(fieldSep)
	sb.WriteString(strconv.Itoa(c.Stock))
	return sb.String()
}

func malformedCap(line string, format string, args ...any) error {
	return fmt.Errorf("%w: malformed cap '%s': %s", ErrInvalidArgument, line, fmt.Sprintf(format, args...))
}

// DecodeCap parses a line created with EncodeCap
func DecodeCap(line string) (*Cap, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != capFieldCount {
		return nil, malformedCap(line, "expected %d fields, got %d", capFieldCount, len(parts))
	}
	var err error
	c := &Cap{
		Color: parts[2],
		Brand: parts[3],
	}
	if c.ID, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return nil, malformedCap(line, "invalid id '%s'", parts[0])
	}
	if c.Style, err = ParseStyle(parts[1]); err != nil {
		return nil, malformedCap(line, "invalid style '%s'", parts[1])
	}
	if parts[4] != absentField {
		c.Collaboration = parts[4]
	}
	c.Price, err = strconv.ParseFloat(parts[5], 64)
	if err != nil || math.IsNaN(c.Price) || math.IsInf(c.Price, 0) {
		return nil, malformedCap(line, "invalid price '%s'", parts[5])
	}
	if c.Size, err = ParseSize(parts[6]); err != nil {
		return nil, malformedCap(line, "invalid size '%s'", parts[6])
	}
	if parts[7] != absentField {
		if c.Gender, err = ParseGender(parts[7]); err != nil || c.Gender == GenderNone {
			return nil, malformedCap(line, "invalid gender '%s'", parts[7])
		}
	}
	if c.Stock, err = strconv.Atoi(parts[8]); err != nil {
		return nil, malformedCap(line, "invalid stock '%s'", parts[8])
	}
	return c, nil
}

// format of the primary index line:
// <id>,<position>
func formatIndexLine(id int64, pos int) string {
	return strconv.FormatInt(id, 10) + fieldSep + strconv.Itoa(pos)
}

func parseIndexLine(line string) (int64, int, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid index line '%s'", ErrInvalidArgument, line)
	}
	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid id in index line '%s'", ErrInvalidArgument, line)
	}
	pos, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid position in index line '%s'", ErrInvalidArgument, line)
	}
	return id, pos, nil
}
