package redirector

// DomainTypeCustom marks a hostname added by the site operator.
const DomainTypeCustom = "custom"

// Domain is one hostname attached to an environment, as returned by the
// hostnames API and stored in the cache file.
type Domain struct {
	Key     string `json:"key"`
	Type    string `json:"type"`
	Primary bool   `json:"primary,omitempty"`
}

func (d Domain) IsCustom() bool {
	return d.Type == DomainTypeCustom
}

// PrimaryDomain picks the canonical hostname. A list holding only the
// platform domain resolves to envDomain.
func PrimaryDomain(domains []Domain, envDomain string) string {
	if len(domains) > 1 {
		return CustomDomain(domains, envDomain)
	}
	return envDomain
}

// CustomDomain returns the custom domain to redirect to. With exactly two
// entries (the platform domain and one custom domain) the custom one wins
// regardless of its primary flag. Otherwise the first custom domain marked
// primary wins. If none qualifies, envDomain is returned.
func CustomDomain(domains []Domain, envDomain string) string {
	for _, d := range domains {
		if !d.IsCustom() {
			continue
		}
		if len(domains) == 2 {
			return d.Key
		}
		if d.Primary {
			return d.Key
		}
	}
	return envDomain
}
