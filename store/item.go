package store

import "math"

// Item is the record that flows through every layer. ID is caller supplied
// and unique within the collection; the business identity of an item is the
// duplicate-key tuple, see Key.
type Item struct {
	ID   int64   `json:"id"`
	Code string  `json:"code"`
	Unit int     `json:"unit"`
	Age  int     `json:"age"`
	Cost float64 `json:"cost"`
}

// Key is the duplicate-key tuple (code, unit, age, cost). Two items with the
// same key are the same logical item regardless of ID. Cost participates
// with two-fraction-digit precision, so it is carried as cents.
type Key struct {
	Code      string
	Unit      int
	Age       int
	CostCents int64
}

func (i *Item) Key() Key {
	return Key{
		Code:      i.Code,
		Unit:      i.Unit,
		Age:       i.Age,
		CostCents: Cents(i.Cost),
	}
}

// Cents rounds a monetary amount to a whole number of cents.
func Cents(cost float64) int64 {
	return int64(math.Round(cost * 100))
}

// Less orders keys over (code, unit, age, cost cents).
func (k Key) Less(other Key) bool {
	if k.Code != other.Code {
		return k.Code < other.Code
	}
	if k.Unit != other.Unit {
		return k.Unit < other.Unit
	}
	if k.Age != other.Age {
		return k.Age < other.Age
	}
	return k.CostCents < other.CostCents
}

// sortFields is the closed set of fields accepted by ListSorted.
var sortFields = map[string]func(a, b *Item) bool{
	"id":   func(a, b *Item) bool { return a.ID < b.ID },
	"code": func(a, b *Item) bool { return a.Code < b.Code },
	"unit": func(a, b *Item) bool { return a.Unit < b.Unit },
	"age":  func(a, b *Item) bool { return a.Age < b.Age },
	"cost": func(a, b *Item) bool { return a.Cost < b.Cost },
}
