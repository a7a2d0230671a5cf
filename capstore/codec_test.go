package capstore

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/kjk/capnation/require"
)

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		p   float64
		exp string
	}{
		{45000, "45000.0"},
		{19.99, "19.99"},
		{0.5, "0.5"},
		{1e21, "1000000000000000000000.0"},
	}
	for _, test := range tests {
		assert.Equal(t, test.exp, formatPrice(test.p))
	}
}

func TestEncodeCap(t *testing.T) {
	c := &Cap{
		ID:    1,
		Style: StyleBaseballCap,
		Color: "Black",
		Brand: "adidas",
		Price: 45000,
		Size:  SizeLarge,
		Stock: 3,
	}
	assert.Equal(t, "1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3", EncodeCap(c))

	c.Collaboration = "Pharrell"
	c.Gender = GenderFemale
	assert.Equal(t, "1,BASEBALL_CAP,Black,adidas,Pharrell,45000.0,LARGE,FEMALE,3", EncodeCap(c))
}

func TestDecodeCap(t *testing.T) {
	c, err := DecodeCap("1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3")
	assert.NoError(t, err)
	exp := Cap{
		ID:    1,
		Style: StyleBaseballCap,
		Color: "Black",
		Brand: "adidas",
		Price: 45000,
		Size:  SizeLarge,
		Stock: 3,
	}
	assert.Equal(t, exp, *c)

	c, err = DecodeCap("7,BEANIE,Red Wine,New Era,Supreme,19.99,ONE_SIZE_FITS_ALL,MALE,120")
	assert.NoError(t, err)
	assert.Equal(t, "New Era", c.Brand)
	assert.Equal(t, "Supreme", c.Collaboration)
	assert.Equal(t, GenderMale, c.Gender)
	assert.Equal(t, 19.99, c.Price)
	assert.Equal(t, "7,BEANIE,Red Wine,New Era,Supreme,19.99,ONE_SIZE_FITS_ALL,MALE,120", EncodeCap(c))
}

func randomCap(r *rand.Rand) Cap {
	texts := []string{"Black", "Red Wine", "adidas", "New Era", "Off-White", "x", ""}
	c := Cap{
		ID:    r.Int64N(1<<62) + 1,
		Style: Styles[r.IntN(len(Styles))],
		Color: texts[r.IntN(len(texts)-1)],
		Brand: texts[r.IntN(len(texts))],
		Size:  Sizes[r.IntN(len(Sizes))],
		Stock: r.IntN(100000),
	}
	switch r.IntN(3) {
	case 0:
		c.Price = float64(r.IntN(10_000_000)+1) / 100
	case 1:
		c.Price = float64(r.IntN(100000))
	default:
		c.Price = r.Float64() * 1e7
	}
	if r.IntN(2) == 0 {
		c.Collaboration = texts[r.IntN(len(texts)-1)]
	}
	switch r.IntN(3) {
	case 0:
		c.Gender = GenderMale
	case 1:
		c.Gender = GenderFemale
	}
	return c
}

func TestCapRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 2000; i++ {
		c := randomCap(r)
		line := EncodeCap(&c)
		c2, err := DecodeCap(line)
		assert.NoError(t, err, "%s", line)
		assert.Equal(t, c, *c2, "%s", line)
		assert.Equal(t, line, EncodeCap(c2))
	}
}

func TestNonCanonicalPrice(t *testing.T) {
	tests := []struct {
		price string
		exp   string
	}{
		{"45000", "45000.0"},
		{"45000.00", "45000.0"},
		{"1.2345678E7", "12345678.0"},
		{"019.990", "19.99"},
		{"19.99", "19.99"},
	}
	for _, test := range tests {
		line := fmt.Sprintf("1,VISOR,Black,adidas,-,%s,LARGE,-,3", test.price)
		c, err := DecodeCap(line)
		assert.NoError(t, err, "%s", line)
		p, err := strconv.ParseFloat(test.price, 64)
		assert.NoError(t, err)
		assert.Equal(t, p, c.Price)
		assert.Equal(t, "1,VISOR,Black,adidas,-,"+test.exp+",LARGE,-,3", EncodeCap(c))
	}
}

func TestDecodeCapMalformed(t *testing.T) {
	lines := []string{
		"",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3,extra",
		"x,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,3",
		"1,TOP_HAT,Black,adidas,-,45000.0,LARGE,-,3",
		"1,BASEBALL_CAP,Black,adidas,-,cheap,LARGE,-,3",
		"1,BASEBALL_CAP,Black,adidas,-,NaN,LARGE,-,3",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,HUGE,-,3",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,OTHER,3",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,,3",
		"1,BASEBALL_CAP,Black,adidas,-,45000.0,LARGE,-,three",
	}
	for _, s := range lines {
		_, err := DecodeCap(s)
		assert.Error(t, err, "line '%s'", s)
		require.ErrorIs(t, err, ErrInvalidArgument, "line '%s'", s)
	}
}

func TestIndexLine(t *testing.T) {
	assert.Equal(t, "12,0", formatIndexLine(12, 0))

	id, pos, err := parseIndexLine("12,3")
	assert.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, 3, pos)

	id, pos, err = parseIndexLine(" 5 , 8 ")
	assert.NoError(t, err)
	assert.Equal(t, int64(5), id)
	assert.Equal(t, 8, pos)

	for _, s := range []string{"12", "12,3,4", "a,3", "12,b"} {
		_, _, err = parseIndexLine(s)
		require.ErrorIs(t, err, ErrInvalidArgument, "line '%s'", s)
	}
}

func TestParseEnums(t *testing.T) {
	for _, s := range Styles {
		v, err := ParseStyle(string(s))
		assert.NoError(t, err)
		assert.Equal(t, s, v)
	}
	_, err := ParseStyle("baseball_cap")
	require.ErrorIs(t, err, ErrInvalidArgument)

	for _, s := range Sizes {
		_, err := ParseSize(string(s))
		assert.NoError(t, err)
	}
	assert.Equal(t, "XL", SizeExtraLarge.Label())
	assert.Equal(t, "One Size Fits All", SizeOneSizeFitsAll.Label())

	g, err := ParseGender("")
	assert.NoError(t, err)
	assert.Equal(t, GenderNone, g)
	_, err = ParseGender("OTHER")
	require.ErrorIs(t, err, ErrInvalidArgument)

	var st Style
	assert.NoError(t, st.UnmarshalText([]byte("VISOR")))
	assert.Equal(t, StyleVisor, st)
	assert.Error(t, st.UnmarshalText([]byte("HELMET")))
}
