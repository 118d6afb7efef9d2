package model

import "strings"

// Category is one of the fixed spending categories.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryTransport     Category = "transport"
	CategoryShopping      Category = "shopping"
	CategoryEntertainment Category = "entertainment"
	CategoryBills         Category = "bills"
	CategorySubscriptions Category = "subscriptions"
	CategoryGroceries     Category = "groceries"
	CategoryHealth        Category = "health"
	CategoryOther         Category = "other"
)

// CategoryInfo is the metadata row for a category. Color, essential flag and
// import keywords live in the same row so a category cannot exist in one
// table and be missing from another.
type CategoryInfo struct {
	Category  Category
	Color     string
	Essential bool
	Keywords  []string
}

// categoryTable is ordered; keyword inference walks it top to bottom and
// "other" must stay last.
var categoryTable = []CategoryInfo{
	{CategoryFood, "#f97316", false, []string{"swiggy", "zomato", "restaurant", "cafe", "pizza", "burger", "dominos", "starbucks"}},
	{CategoryTransport, "#3b82f6", true, []string{"uber", "ola", "metro", "rapido", "petrol", "fuel", "irctc", "parking"}},
	{CategoryShopping, "#ec4899", false, []string{"amazon", "flipkart", "myntra", "ajio", "meesho", "decathlon"}},
	{CategoryEntertainment, "#a855f7", false, []string{"bookmyshow", "pvr", "inox", "cinema", "steam", "gaming"}},
	{CategoryBills, "#64748b", true, []string{"electricity", "water bill", "broadband", "airtel", "jio", "recharge", "house rent"}},
	{CategorySubscriptions, "#14b8a6", true, []string{"netflix", "spotify", "prime", "hotstar", "youtube", "subscription"}},
	{CategoryGroceries, "#22c55e", true, []string{"bigbasket", "blinkit", "zepto", "dmart", "grocery", "instamart"}},
	{CategoryHealth, "#ef4444", true, []string{"pharmacy", "apollo", "medplus", "hospital", "clinic", "1mg"}},
	{CategoryOther, "#9ca3af", true, nil},
}

var categoryIndex = func() map[Category]CategoryInfo {
	idx := make(map[Category]CategoryInfo, len(categoryTable))
	for _, info := range categoryTable {
		if _, dup := idx[info.Category]; dup {
			panic("duplicate category: " + string(info.Category))
		}
		idx[info.Category] = info
	}
	return idx
}()

// Categories returns all categories in table order.
func Categories() []Category {
	out := make([]Category, len(categoryTable))
	for i, info := range categoryTable {
		out[i] = info.Category
	}
	return out
}

// Info returns the metadata for c.
func Info(c Category) (CategoryInfo, bool) {
	info, ok := categoryIndex[c]
	return info, ok
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	_, ok := categoryIndex[c]
	return ok
}

// Essential reports whether c is an essential category. Unknown categories
// count as essential.
func (c Category) Essential() bool {
	info, ok := categoryIndex[c]
	if !ok {
		return true
	}
	return info.Essential
}

// Color returns the display color for c, falling back to the "other" color.
func (c Category) Color() string {
	if info, ok := categoryIndex[c]; ok {
		return info.Color
	}
	return categoryIndex[CategoryOther].Color
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

// InferCategory maps a bank description to a category by keyword.
// Unmatched descriptions map to CategoryOther.
func InferCategory(description string) Category {
	desc := strings.ToLower(description)
	for _, info := range categoryTable {
		for _, kw := range info.Keywords {
			if strings.Contains(desc, kw) {
				return info.Category
			}
		}
	}
	return CategoryOther
}
