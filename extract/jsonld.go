package extract

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tbielich/mb-parts/snapshot"
)

// fromJSONLD parses embedded structured product metadata. Every
// JSON-LD block is walked breadth-first; each object typed as a
// product contributes one candidate. Malformed blocks are skipped.
func fromJSONLD(doc *html.Node, base *url.URL) []snapshot.PartRecord {
	var out []snapshot.PartRecord
	for _, script := range findAllByTag(doc, atom.Script) {
		if !strings.EqualFold(getAttr(script, "type"), "application/ld+json") {
			continue
		}
		var root any
		if err := json.Unmarshal([]byte(scriptText(script)), &root); err != nil {
			continue
		}
		for _, m := range walkProducts(root) {
			if r, ok := productRecord(m, base); ok {
				out = append(out, r)
			}
		}
	}
	return out
}

// walkProducts walks nested arrays/objects breadth-first and collects
// every object whose @type is Product.
func walkProducts(root any) []map[string]any {
	var products []map[string]any
	queue := []any{root}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		switch t := v.(type) {
		case map[string]any:
			if isProductType(t["@type"]) {
				products = append(products, t)
			}
			for _, child := range t {
				queue = append(queue, child)
			}
		case []any:
			queue = append(queue, t...)
		}
	}
	return products
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, "Product")
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && strings.EqualFold(s, "Product") {
				return true
			}
		}
	}
	return false
}

// productRecord extracts a candidate from one Product object. The id
// comes from sku/productID/mpn in priority order; price, availability
// and url from the standard offer sub-fields.
func productRecord(m map[string]any, base *url.URL) (snapshot.PartRecord, bool) {
	id := normalizeCandidate(probeString(m, "sku", "productID", "mpn"))
	if id == "" {
		return snapshot.PartRecord{}, false
	}

	offer := firstOffer(m["offers"])

	price := probePrice(offer)
	avail := offerAvailability(offer)

	href := probeString(m, "url")
	if href == "" {
		href = probeString(offer, "url")
	}

	return snapshot.PartRecord{
		PartNumber:   id,
		Name:         probeString(m, "name"),
		Price:        price,
		URL:          resolveHref(base, href),
		Availability: avail,
	}, true
}

// firstOffer unwraps offers, which may be an object, an array, or absent.
func firstOffer(v any) map[string]any {
	switch t := v.(type) {
	case map[string]any:
		return t
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				return m
			}
		}
	}
	return nil
}

// probeString returns the first non-empty string among keys, in order.
func probeString(m map[string]any, keys ...string) string {
	if m == nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}

// probePrice reads an offer price, keeping string values verbatim and
// formatting numeric ones with two decimals. Currency is appended only
// when the offer declares EUR.
func probePrice(offer map[string]any) string {
	if offer == nil {
		return ""
	}
	var price string
	switch t := offer["price"].(type) {
	case string:
		price = strings.TrimSpace(t)
	case float64:
		price = strings.Replace(fmt.Sprintf("%.2f", t), ".", ",", 1)
	}
	if price == "" {
		return ""
	}
	if cur := probeString(offer, "priceCurrency"); strings.EqualFold(cur, "EUR") {
		return price + " €"
	}
	return price
}

// offerAvailability maps schema.org availability URIs. PreOrder maps
// to unknown, matching the classifier's lossy treatment of preorder.
func offerAvailability(offer map[string]any) snapshot.Availability {
	raw := probeString(offer, "availability")
	if raw == "" {
		return snapshot.Unknown()
	}
	label := raw
	if idx := strings.LastIndexByte(raw, '/'); idx >= 0 {
		label = raw[idx+1:]
	}
	switch {
	case strings.EqualFold(label, "InStock"), strings.EqualFold(label, "InStoreOnly"),
		strings.EqualFold(label, "LimitedAvailability"):
		return snapshot.Availability{Status: snapshot.StatusInStock, Label: label}
	case strings.EqualFold(label, "OutOfStock"), strings.EqualFold(label, "SoldOut"),
		strings.EqualFold(label, "Discontinued"):
		return snapshot.Availability{Status: snapshot.StatusOutOfStock, Label: label}
	default:
		return snapshot.Availability{Status: snapshot.StatusUnknown, Label: label}
	}
}
