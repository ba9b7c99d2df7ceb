package model

import (
	"net"
	"net/url"
	"strings"
)

// NormalizeDomain lowercases a host and strips a leading "www." and any
// port, so "WWW.Example.com:443" and "example.com" compare equal.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimPrefix(host, "www.")
}

// SameSite reports whether two hosts name the same site.
func SameSite(a, b string) bool {
	return NormalizeDomain(a) == NormalizeDomain(b)
}

// DomainFromURL extracts the host of an http(s) URL. Other schemes
// (extension pages, about:, file:) report false.
func DomainFromURL(raw string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	host := parsed.Hostname()
	if host == "" {
		return "", false
	}
	return strings.ToLower(host), true
}

// SiteList is a parsed comma-separated host list.
type SiteList []string

// ParseSiteList accepts the options-page format: comma or newline
// separated hosts, optionally written as URLs.
func ParseSiteList(raw string) SiteList {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	seen := make(map[string]struct{}, len(fields))
	sites := make(SiteList, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if host, ok := DomainFromURL(field); ok {
			field = host
		} else if i := strings.IndexAny(field, "/?#"); i >= 0 {
			field = field[:i]
		}
		site := NormalizeDomain(field)
		if site == "" {
			continue
		}
		if _, dup := seen[site]; dup {
			continue
		}
		seen[site] = struct{}{}
		sites = append(sites, site)
	}
	return sites
}

// Contains matches domain against the list with www. equivalence.
func (l SiteList) Contains(domain string) bool {
	target := NormalizeDomain(domain)
	if target == "" {
		return false
	}
	for _, site := range l {
		if NormalizeDomain(site) == target {
			return true
		}
	}
	return false
}

func (l SiteList) String() string {
	return strings.Join(l, ",")
}
