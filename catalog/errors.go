package catalog

import "errors"

var (
	// ErrNoPrefixes is returned when a crawl is requested without any
	// configured part-number prefixes.
	ErrNoPrefixes = errors.New("catalog: no prefixes configured")

	// ErrNoItems is returned by direct refresh when the request names
	// no usable part numbers.
	ErrNoItems = errors.New("catalog: no part numbers given")
)
