package pricing

import "errors"

// Error kinds surfaced by the pipeline. Callers match them with errors.Is.
var (
	ErrInvalidURL            = errors.New("invalid url")
	ErrUnsupportedSite       = errors.New("unsupported site")
	ErrUnsupportedCapability = errors.New("capability not supported by site")
	ErrFetchFailed           = errors.New("fetch failed")
	ErrParseFailed           = errors.New("parse failed")
	ErrOutOfStock            = errors.New("out of stock")
	ErrPriceNotFound         = errors.New("price not found")
	ErrDisallowedContent     = errors.New("content type not allowed")
	ErrStorageFailed         = errors.New("storage failed")
	ErrTransportFailed       = errors.New("transport failed")
	ErrNotFound              = errors.New("not found")
)

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrInvalidURL, "invalid_url"},
	{ErrUnsupportedSite, "unsupported_site"},
	{ErrUnsupportedCapability, "unsupported_capability"},
	{ErrOutOfStock, "out_of_stock"},
	{ErrPriceNotFound, "price_not_found"},
	{ErrDisallowedContent, "disallowed_content"},
	{ErrParseFailed, "parse_failed"},
	{ErrFetchFailed, "fetch_failed"},
	{ErrNotFound, "not_found"},
	{ErrStorageFailed, "storage_failed"},
	{ErrTransportFailed, "transport_failed"},
}

// ErrorKind maps err to a stable label for logs and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "unknown"
}
