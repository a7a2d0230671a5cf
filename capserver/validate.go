package capserver

import (
	"fmt"
	"math"
	"strings"

	"github.com/kjk/capnation/capstore"
)

func invalidCap(format string, args ...any) error {
	return fmt.Errorf("%w: %s", capstore.ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// free text is stored in comma-separated lines
func checkText(field string, s string) error {
	if strings.ContainsAny(s, ",\r\n") {
		return invalidCap("%s must not contain ',' or a newline", field)
	}
	return nil
}

// ValidateCap checks c before it's saved. Errors wrap capstore.ErrInvalidArgument.
func ValidateCap(c *capstore.Cap) error {
	if c.ID <= 0 {
		return invalidCap("id must be positive, got %d", c.ID)
	}
	if math.IsNaN(c.Price) || math.IsInf(c.Price, 0) || c.Price <= 0 {
		return invalidCap("price must be positive")
	}
	if c.Stock <= 0 {
		return invalidCap("stock must be positive")
	}
	if strings.TrimSpace(c.Color) == "" {
		return invalidCap("color is required")
	}
	if strings.TrimSpace(c.Brand) == "" {
		return invalidCap("brand is required")
	}
	if err := checkText("color", c.Color); err != nil {
		return err
	}
	if err := checkText("brand", c.Brand); err != nil {
		return err
	}
	if err := checkText("collaboration", c.Collaboration); err != nil {
		return err
	}
	// "-" is how an absent collaboration is stored
	if c.Collaboration == "-" {
		return invalidCap("collaboration can't be '-'")
	}
	if _, err := capstore.ParseStyle(string(c.Style)); err != nil {
		return err
	}
	if _, err := capstore.ParseSize(string(c.Size)); err != nil {
		return err
	}
	if _, err := capstore.ParseGender(string(c.Gender)); err != nil {
		return err
	}
	return nil
}
