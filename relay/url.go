package relay

import (
	"net/url"
	"runtime"
	"strconv"
)

// BuildURL produces the connection URL for a relay endpoint. Web schemes are
// rewritten to their socket equivalents (https to wss, http to ws, anything
// else left alone) and the protocol, version, and environment descriptor are
// merged into the query string, preserving pre-existing parameters.
func BuildURL(endpoint string, protocol string, version int) (string, error) {
	return buildURL(endpoint, protocol, version, runtime.GOOS)
}

func buildURL(endpoint string, protocol string, version int, goos string) (string, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", NewError(InvalidURIError, err)
	}

	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	case "http":
		parsed.Scheme = "ws"
	}

	query := parsed.Query()
	query.Set("protocol", protocol)
	query.Set("version", strconv.Itoa(version))
	if goos == "js" {
		query.Set("env", "browser")
		query.Set("host", parsed.Host)
	} else {
		query.Set("env", goos)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
