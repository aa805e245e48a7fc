package inventory

import "strings"

// Fallback is the category for food that matches no keyword.
const Fallback = "Other"

type keywordSet struct {
	category string
	words    []string
}

// Order matters for substring matching: "ice cream" must be tried before
// "cream", and prepared dishes before their ingredients.
var keywords = []keywordSet{
	{"Prepared Meals", []string{"lasagna", "casserole", "sandwich", "burrito", "curry", "stew", "soup", "salad", "pizza", "leftover", "meal"}},
	{"Frozen", []string{"ice cream", "frozen", "popsicle", "sorbet"}},
	{"Dairy", []string{"milk", "cheese", "yogurt", "yoghurt", "butter", "cream", "eggs", "egg", "kefir"}},
	{"Meat & Seafood", []string{"chicken", "beef", "pork", "turkey", "lamb", "bacon", "sausage", "ham", "salmon", "tuna", "shrimp", "fish", "mince"}},
	{"Bakery", []string{"bread", "bagel", "baguette", "croissant", "muffin", "roll", "bun", "tortilla", "cake", "pastry", "pie"}},
	{"Beverages", []string{"juice", "coffee", "tea", "soda", "water", "lemonade", "smoothie"}},
	{"Snacks", []string{"chips", "crisps", "cookie", "cracker", "chocolate", "candy", "popcorn", "granola bar", "nuts"}},
	{"Grains & Pantry", []string{"rice", "pasta", "noodle", "flour", "oats", "cereal", "quinoa", "lentil", "bean", "chickpea", "sugar", "oil", "sauce", "canned", "tin"}},
	{"Produce", []string{"apple", "banana", "orange", "lemon", "lime", "berry", "berries", "grape", "melon", "pear", "peach", "tomato", "potato", "onion", "garlic", "lettuce", "spinach", "kale", "broccoli", "carrot", "celery", "cucumber", "pepper", "mushroom", "corn", "zucchini", "avocado", "fruit", "vegetable", "veg"}},
}

var exact = func() map[string]string {
	m := make(map[string]string)
	for _, set := range keywords {
		for _, w := range set.words {
			if _, seen := m[w]; !seen {
				m[w] = set.category
			}
		}
	}
	return m
}()

// Categorize guesses a food category from an item name, trying an exact
// keyword match (ignoring a trailing plural "s") before substring matches.
func Categorize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return Fallback
	}

	if cat, ok := exact[n]; ok {
		return cat
	}
	if cat, ok := exact[strings.TrimSuffix(n, "s")]; ok {
		return cat
	}

	for _, set := range keywords {
		for _, w := range set.words {
			if strings.Contains(n, w) {
				return set.category
			}
		}
	}
	return Fallback
}
