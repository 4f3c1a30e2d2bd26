package tracking

import (
	"context"
	"strings"

	"github.com/pterm/pterm"
)

// Labels are the localized placeholders used when formatting a visitor
type Labels struct {
	Unknown       string
	Anonymous     string
	NotIdentified string
}

func DefaultLabels() Labels {
	return Labels{
		Unknown:       "Unknown",
		Anonymous:     "Anonymous",
		NotIdentified: "not identified",
	}
}

// CompanyLookup resolves the company operating an IP address
type CompanyLookup interface {
	CompanyByIP(ctx context.Context, ip string) (string, error)
}

// ProviderList holds consumer ISPs whose names say nothing about a company
type ProviderList interface {
	Contains(name string) bool
}

// FullName formats the visitor for lists and dashboards
func (a *Aggregate) FullName(labels Labels) string {
	name := a.nameCombination()
	if a.Visitor.Identified {
		switch {
		case name != "":
			return name
		case a.Visitor.Email != "":
			return a.Visitor.Email
		default:
			return labels.Unknown
		}
	}
	if name != "" {
		return name + " [" + labels.NotIdentified + "]"
	}
	return labels.Anonymous
}

// nameCombination is "Lastname, Firstname" or whichever part exists
func (a *Aggregate) nameCombination() string {
	first := strings.TrimSpace(a.Attribute("firstname"))
	last := strings.TrimSpace(a.Attribute("lastname"))
	switch {
	case first != "" && last != "":
		return last + ", " + first
	case last != "":
		return last
	default:
		return first
	}
}

// Company prefers the company attribute, then the IP lookup, then the
// ISP reported by GeoIP unless it is a known consumer provider.
func (a *Aggregate) Company(ctx context.Context, lookup CompanyLookup, providers ProviderList, logger *pterm.Logger) string {
	if company := strings.TrimSpace(a.Attribute("company")); company != "" {
		return company
	}

	if lookup != nil && a.Visitor.IPAddress != "" {
		company, err := lookup.CompanyByIP(ctx, a.Visitor.IPAddress)
		if err != nil && logger != nil {
			logger.Debug("Company lookup failed", logger.Args("visitor_id", a.Visitor.ID, "error", err))
		}
		if company = strings.TrimSpace(company); company != "" {
			return company
		}
	}

	isp := strings.TrimSpace(a.Ipinformation("isp"))
	if isp == "" {
		return ""
	}
	if providers != nil && providers.Contains(isp) {
		return ""
	}
	return isp
}

// Location joins city and country with " / " only when both are known
func (a *Aggregate) Location() string {
	city := strings.TrimSpace(a.Ipinformation("city"))
	country := strings.TrimSpace(a.Ipinformation("country"))
	if city != "" && country != "" {
		return city + " / " + country
	}
	return city + country
}
