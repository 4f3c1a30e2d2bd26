package enrichment

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"leadlynx/internal/database/repositories"
	"leadlynx/internal/errs"

	"github.com/pterm/pterm"
)

type companyRange struct {
	prefix  netip.Prefix
	company string
}

// CompanyDirectory maps registered address ranges to company names
type CompanyDirectory struct {
	catalog repositories.CatalogRepository
	logger  *pterm.Logger
	mu      sync.RWMutex
	ranges  []companyRange // most specific first
	loaded  bool
}

func NewCompanyDirectory(catalog repositories.CatalogRepository, logger *pterm.Logger) *CompanyDirectory {
	return &CompanyDirectory{catalog: catalog, logger: logger}
}

// Reload reads all ranges from the catalog. Unparseable entries are skipped.
func (d *CompanyDirectory) Reload(ctx context.Context) error {
	companies, err := d.catalog.ListIPCompanies(ctx)
	if err != nil {
		return err
	}

	ranges := make([]companyRange, 0, len(companies))
	for _, c := range companies {
		prefix, err := parseRange(c.CIDR)
		if err != nil {
			d.logger.Warn("Skipping invalid company range", d.logger.Args("cidr", c.CIDR, "error", err))
			continue
		}
		ranges = append(ranges, companyRange{prefix: prefix, company: c.Company})
	}
	sort.SliceStable(ranges, func(i, j int) bool {
		return ranges[i].prefix.Bits() > ranges[j].prefix.Bits()
	})

	d.mu.Lock()
	d.ranges = ranges
	d.loaded = true
	d.mu.Unlock()

	d.logger.Debug("Company ranges loaded", d.logger.Args("ranges", len(ranges)))
	return nil
}

// CompanyByIP returns the company of the most specific range containing ip
func (d *CompanyDirectory) CompanyByIP(ctx context.Context, ip string) (string, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return "", errs.Validation("ip", err.Error())
	}
	addr = addr.Unmap()

	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if !loaded {
		if err := d.Reload(ctx); err != nil {
			return "", err
		}
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, r := range d.ranges {
		if r.prefix.Contains(addr) {
			return r.company, nil
		}
	}
	return "", nil
}

// parseRange accepts a CIDR or a single address
func parseRange(value string) (netip.Prefix, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return netip.Prefix{}, err
		}
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}
