package notify

import "net/url"

// redact drops the path of a webhook URL, which carries its secret token.
func redact(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return "invalid"
	}
	return u.Scheme + "://" + u.Host
}
