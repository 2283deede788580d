package shell

import (
	"net/url"
	"strings"

	"github.com/yoockh/meetsense/internal/utils"
)

// exact hosts; the value says whether subdomains are accepted too
var allowedHosts = map[string]bool{
	"meet.google.com":     false,
	"zoom.us":             true,
	"teams.microsoft.com": false,
	"teams.live.com":      false,
	"webex.com":           true,
}

// ValidateMeetingURL accepts https links on a known meeting provider.
func ValidateMeetingURL(raw string) (*url.URL, error) {
	const op = "shell.ValidateMeetingURL"

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, utils.E(utils.CodeInvalidMeetingURL, op, "meeting url is not a valid absolute url", err)
	}
	if u.Scheme != "https" {
		return nil, utils.E(utils.CodeInvalidMeetingURL, op, "meeting url must use https", nil)
	}
	if u.User != nil {
		return nil, utils.E(utils.CodeInvalidMeetingURL, op, "meeting url must not carry credentials", nil)
	}

	host := strings.ToLower(u.Hostname())
	if !hostAllowed(host) {
		return nil, utils.E(utils.CodeInvalidMeetingURL, op, "meeting provider "+host+" is not supported", nil)
	}
	return u, nil
}

func hostAllowed(host string) bool {
	if _, ok := allowedHosts[host]; ok {
		return true
	}
	for base, subs := range allowedHosts {
		if subs && strings.HasSuffix(host, "."+base) {
			return true
		}
	}
	return false
}
