package storefront

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoPrice is returned when a text holds no parsable amount.
var ErrNoPrice = errors.New("no price in text")

// ParsePrice keeps only digits and dots of text and parses the rest, so
// "$1,234.50" reads as 1234.5.
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return 0, fmt.Errorf("%w: %q", ErrNoPrice, text)
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNoPrice, text, err)
	}
	return v, nil
}

// RGB is a computed colour without its alpha channel.
type RGB struct {
	R, G, B int
}

// ParseColor reads "rgb(r, g, b)" and "rgba(r, g, b, a)" values.
func ParseColor(value string) (RGB, bool) {
	if !strings.Contains(value, "rgb") {
		return RGB{}, false
	}
	open := strings.Index(value, "(")
	end := strings.LastIndex(value, ")")
	if open < 0 || end <= open {
		return RGB{}, false
	}
	parts := strings.Split(value[open+1:end], ",")
	if len(parts) < 3 {
		return RGB{}, false
	}
	var ch [3]int
	for i := range ch {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return RGB{}, false
		}
		ch[i] = n
	}
	return RGB{R: ch[0], G: ch[1], B: ch[2]}, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// IsGrey reports a colour whose channels differ by at most 20 and which is
// neither near black nor near white.
func IsGrey(value string) bool {
	c, ok := ParseColor(value)
	if !ok {
		return false
	}
	spread := max(abs(c.R-c.G), abs(c.G-c.B), abs(c.R-c.B))
	notBlack := c.R > 50 || c.G > 50 || c.B > 50
	notWhite := c.R < 200 || c.G < 200 || c.B < 200
	return spread <= 20 && notBlack && notWhite
}

// IsBlue reports a colour whose blue channel beats both others.
func IsBlue(value string) bool {
	c, ok := ParseColor(value)
	if !ok {
		return false
	}
	return c.B > c.R && c.B > c.G
}

// HasStrikethrough reports whether a computed text-decoration strikes text out.
func HasStrikethrough(decoration string) bool {
	return strings.Contains(decoration, "line-through")
}
