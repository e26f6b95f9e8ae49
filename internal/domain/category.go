package domain

import "fmt"

// Category tags a memory with one of the four community pillars.
type Category string

const (
	CategoryLearn Category = "Learn"
	CategoryBurn  Category = "Burn"
	CategoryEarn  Category = "Earn"
	CategoryFun   Category = "Fun"
)

// Categories lists every category in its fixed enumeration order.
// Aggregations that need a deterministic tie-break iterate this slice.
var Categories = []Category{CategoryLearn, CategoryBurn, CategoryEarn, CategoryFun}

// ParseCategory validates a raw category name.
func ParseCategory(raw string) (Category, error) {
	for _, c := range Categories {
		if string(c) == raw {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", raw)
}

// Valid reports whether c is one of the closed set of categories.
func (c Category) Valid() bool {
	_, err := ParseCategory(string(c))
	return err == nil
}

func (c Category) String() string { return string(c) }
