// Package textnorm canonicalizes Amharic homophone letters so that search is
// insensitive to which spelling variant a user or an editor picked.
package textnorm

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// vowelOrders is the number of vowel forms per Ethiopic consonant family
// covered by the table (orders 1 through 7).
const vowelOrders = 7

// families lists each homophone family as its canonical base letter followed
// by the variant base letters that collapse into it.
var families = [][]rune{
	{'ሀ', 'ሐ', 'ኀ'},
	{'ሰ', 'ሠ'},
	{'አ', 'ዐ'},
	{'ጸ', 'ፀ'},
}

var canonical = buildTable()

func buildTable() map[rune]rune {
	m := make(map[rune]rune, len(families)*vowelOrders*2)
	for _, fam := range families {
		base := fam[0]
		for _, variant := range fam[1:] {
			for order := rune(0); order < vowelOrders; order++ {
				m[variant+order] = base + order
			}
		}
	}
	return m
}

// Normalize maps every variant letter to its canonical family member.
// All other runes pass through unchanged.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	return strings.Map(func(r rune) rune {
		if c, ok := canonical[r]; ok {
			return c
		}
		return r
	}, text)
}

// Fold lowercases text and then normalizes it. Index entries and live queries
// both go through Fold so substring matches line up.
func Fold(text string) string {
	if text == "" {
		return ""
	}
	return Normalize(cases.Lower(language.Und).String(text))
}
