package extract

import (
	"strings"

	"github.com/tbielich/mb-parts/snapshot"
)

// foldReplacer makes keyword matching accent-tolerant: German umlauts
// and common French accents collapse to their base letters.
var foldReplacer = strings.NewReplacer(
	"ä", "a", "ö", "o", "ü", "u", "ß", "ss",
	"é", "e", "è", "e", "ê", "e", "à", "a", "ç", "c",
)

// Vocabulary is the site-specific availability keyword table. First
// match wins, checked out-of-stock → in-stock → preorder; everything
// else is unknown. Kept as data rather than logic: the shop's wording
// is empirical and the tables are exercised directly by tests.
type Vocabulary struct {
	OutOfStock []string
	InStock    []string
	Preorder   []string
}

// DefaultVocabulary covers the German/English wording observed on the
// shop's listing and detail pages.
var DefaultVocabulary = Vocabulary{
	OutOfStock: []string{
		"nicht lieferbar", "nicht verfügbar", "nicht auf lager",
		"ausverkauft", "vergriffen", "derzeit nicht",
		"out of stock", "sold out", "unavailable",
	},
	InStock: []string{
		"sofort lieferbar", "sofort versandfertig", "auf lager",
		"lieferbar", "verfügbar", "in stock", "available",
	},
	Preorder: []string{
		"vorbestell", "bald verfügbar", "bald wieder",
		"preorder", "pre-order",
	},
}

// Classify matches text against the default vocabulary.
func Classify(text string) snapshot.Availability {
	return DefaultVocabulary.Classify(text)
}

// Classify returns the availability signalled by text, defaulting to
// unknown. Preorder wording is recognized but deliberately mapped to
// StatusUnknown with the label preserved; the catalog has no preorder
// status and the upstream data treats it as not-yet-available.
func (v Vocabulary) Classify(text string) snapshot.Availability {
	t := foldReplacer.Replace(strings.ToLower(text))
	match := func(kws []string) string {
		for _, kw := range kws {
			folded := foldReplacer.Replace(strings.ToLower(kw))
			if strings.Contains(t, folded) {
				return kw
			}
		}
		return ""
	}
	if kw := match(v.OutOfStock); kw != "" {
		return snapshot.Availability{Status: snapshot.StatusOutOfStock, Label: kw}
	}
	if kw := match(v.InStock); kw != "" {
		return snapshot.Availability{Status: snapshot.StatusInStock, Label: kw}
	}
	if kw := match(v.Preorder); kw != "" {
		return snapshot.Availability{Status: snapshot.StatusUnknown, Label: kw}
	}
	return snapshot.Unknown()
}
