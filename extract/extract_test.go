package extract

import (
	"testing"

	"github.com/tbielich/mb-parts/snapshot"
)

const listingPage = `<!doctype html>
<html><body>
<nav><a href="/impressum">Impressum</a><a href="/warenkorb">Warenkorb</a></nav>
<ul>
  <li class="product-item">
    <a href="/teile/a3096010257">Ölfilter Einsatz</a>
    <span>A 309 601 02 57</span>
    <span class="price">24,90 €</span>
    <span>sofort lieferbar</span>
  </li>
  <li class="product-item">
    <a href="/teile/a3097654321">Bremsscheibe vorn</a>
    <span>A 309 765 43 21</span>
    <span class="price">1.249,00 EUR</span>
    <span>derzeit nicht verfügbar</span>
  </li>
</ul>
</body></html>`

func TestExtract_Containers(t *testing.T) {
	got := Extract([]byte(listingPage), Options{
		BaseURL:  "https://shop.example.test/suche?q=A309",
		Prefixes: []string{"A309"},
	})
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2 (%#v)", len(got), got)
	}

	first := got[0]
	if first.PartNumber != "A3096010257" {
		t.Errorf("part number: got %q", first.PartNumber)
	}
	if first.Name != "Ölfilter Einsatz" {
		t.Errorf("name: got %q", first.Name)
	}
	if first.Price != "24,90 €" {
		t.Errorf("price: got %q", first.Price)
	}
	if first.URL != "https://shop.example.test/teile/a3096010257" {
		t.Errorf("url: got %q", first.URL)
	}
	if first.Availability.Status != snapshot.StatusInStock {
		t.Errorf("availability: got %q", first.Availability.Status)
	}

	second := got[1]
	if second.Price != "1.249,00 EUR" {
		t.Errorf("price: got %q", second.Price)
	}
	if second.Availability.Status != snapshot.StatusOutOfStock {
		t.Errorf("availability: got %q, want out_of_stock (nicht verfügbar)", second.Availability.Status)
	}
}

func TestExtract_PrefixFilter(t *testing.T) {
	// WHAT: extraction restricted to one prefix drops other matches.
	// WHY: the crawler runs each search term with a single active prefix.
	got := Extract([]byte(listingPage), Options{
		BaseURL:  "https://shop.example.test/",
		Prefixes: []string{"A310"},
	})
	if len(got) != 0 {
		t.Errorf("want no records outside prefix, got %#v", got)
	}
}

func TestExtract_JSONLDProduct(t *testing.T) {
	// One JSON-LD Product with sku "a309-999" and no recognizable
	// containers yields exactly one record A309999.
	page := `<html><head>
<script type="application/ld+json">
{"@context":"https://schema.org","@graph":[
  {"@type":"Organization","name":"Shop"},
  {"@type":"Product","sku":"a309-999","name":"Dichtring",
   "url":"/p/dichtring",
   "offers":{"@type":"Offer","price":"3.90","priceCurrency":"EUR",
             "availability":"https://schema.org/InStock"}}
]}
</script>
</head><body><p>Keine Treffer</p></body></html>`

	got := Extract([]byte(page), Options{
		BaseURL:  "https://shop.example.test/suche",
		Prefixes: []string{"A309"},
	})
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1 (%#v)", len(got), got)
	}
	r := got[0]
	if r.PartNumber != "A309999" {
		t.Errorf("part number: got %q, want A309999", r.PartNumber)
	}
	if r.Name != "Dichtring" {
		t.Errorf("name: got %q", r.Name)
	}
	if r.Price != "3.90 €" {
		t.Errorf("price: got %q", r.Price)
	}
	if r.URL != "https://shop.example.test/p/dichtring" {
		t.Errorf("url: got %q", r.URL)
	}
	if r.Availability.Status != snapshot.StatusInStock {
		t.Errorf("availability: got %q", r.Availability.Status)
	}
}

func TestExtract_EmbeddedStateFallback(t *testing.T) {
	// WHAT: with no containers and no JSON-LD, inline script state is
	// scanned; with enough markup results it is not.
	page := `<html><body>
<script>
window.__INITIAL_STATE__ = {"search":{"results":[
  {"articleNumber":"A3090001234","name":"Keilriemen","price":"12,50 €",
   "detailUrl":"/p/keilriemen","stockStatus":"auf Lager"},
  {"articleNumber":"A3090005678","name":"Luftfilter","inStock":false}
]}};
</script>
</body></html>`

	got := Extract([]byte(page), Options{
		BaseURL:  "https://shop.example.test/",
		Prefixes: []string{"A309"},
	})
	if len(got) != 2 {
		t.Fatalf("records: got %d, want 2 (%#v)", len(got), got)
	}
	if got[0].PartNumber != "A3090001234" || got[0].Availability.Status != snapshot.StatusInStock {
		t.Errorf("first record: %#v", got[0])
	}
	if got[1].Availability.Status != snapshot.StatusOutOfStock {
		t.Errorf("boolean stock flag should map to out_of_stock: %#v", got[1])
	}
}

func TestExtract_EmbeddedSkippedWhenEnoughResults(t *testing.T) {
	page := `<html><body>
<ul>
 <li class="product-item"><a href="/p/1">Teil eins A 309 000 11 11</a></li>
 <li class="product-item"><a href="/p/2">Teil zwei A 309 000 22 22</a></li>
 <li class="product-item"><a href="/p/3">Teil drei A 309 000 33 33</a></li>
</ul>
<script>var state = {"sku":"A3099999999","name":"Phantom"};</script>
</body></html>`

	got := Extract([]byte(page), Options{BaseURL: "https://shop.example.test/", Prefixes: []string{"A309"}})
	if len(got) != 3 {
		t.Fatalf("records: got %d, want 3", len(got))
	}
	for _, r := range got {
		if r.PartNumber == "A3099999999" {
			t.Error("embedded state should not run when markup yielded 3 results")
		}
	}
}

func TestExtract_ExcludedPlaceholderDropped(t *testing.T) {
	// WHAT: the all-zero placeholder id never surfaces, even when it
	// matches a configured prefix.
	page := `<html><body>
<li class="product-item" data-sku="A0000000000"><a href="/p/x">Platzhalter 0,00 €</a></li>
</body></html>`
	got := Extract([]byte(page), Options{BaseURL: "https://shop.example.test/", Prefixes: []string{"A0"}})
	if len(got) != 0 {
		t.Errorf("placeholder must be dropped, got %#v", got)
	}
}

func TestExtract_DedupWithinPage(t *testing.T) {
	page := `<html><body>
<li class="product-item"><a href="/p/a3096010257">Ölfilter A 309 601 02 57</a></li>
<script type="application/ld+json">
{"@type":"Product","sku":"A3096010257","name":"Ölfilter Einsatz"}
</script>
</body></html>`
	got := Extract([]byte(page), Options{BaseURL: "https://shop.example.test/", Prefixes: []string{"A309"}})
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1 (container result wins)", len(got))
	}
}

func TestFindPartID(t *testing.T) {
	cases := []struct {
		text     string
		prefixes []string
		want     string
	}{
		{"Ölfilter A 309 601 02 57 passend", []string{"A309"}, "A3096010257"},
		{"/teile/a309-601-02-57", []string{"A309"}, "A3096010257"},
		{"nur der Suchbegriff A309", []string{"A309"}, ""},
		{"/parts/A3096010257", nil, "A3096010257"},
		{"A00000000000", nil, ""}, // placeholder
		{"kein Treffer", []string{"A309"}, ""},
	}
	for _, c := range cases {
		if got := FindPartID(c.text, c.prefixes); got != c.want {
			t.Errorf("FindPartID(%q, %v) = %q, want %q", c.text, c.prefixes, got, c.want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		text string
		want snapshot.Status
	}{
		{"Sofort lieferbar, Versand heute", snapshot.StatusInStock},
		{"Artikel ist ausverkauft", snapshot.StatusOutOfStock},
		{"Nicht lieferbar", snapshot.StatusOutOfStock},
		{"nicht verfugbar", snapshot.StatusOutOfStock}, // accent-folded input
		{"Jetzt vorbestellen", snapshot.StatusUnknown}, // preorder is lossy
		{"Lorem ipsum", snapshot.StatusUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.text); got.Status != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.text, got.Status, c.want)
		}
	}
}

func TestFindPrice(t *testing.T) {
	cases := []struct{ in, want string }{
		{"Preis: 24,90 € inkl. MwSt", "24,90 €"},
		{"1.249,00 EUR", "1.249,00 EUR"},
		{"12,50", "12,50"},
		{"no price here", ""},
	}
	for _, c := range cases {
		if got := FindPrice(c.in); got != c.want {
			t.Errorf("FindPrice(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
