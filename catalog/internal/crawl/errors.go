package crawl

import "errors"

// ErrNoSearchURL is returned when a crawl run is started without a
// usable search endpoint.
var ErrNoSearchURL = errors.New("crawl: no search URL configured")
