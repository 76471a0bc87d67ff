package main

import (
	"regexp"
	"strconv"
	"strings"
)

// NetworkConfig is the whole-document shape exchanged with the store.
// Field names follow the canonical wire representation and must survive
// export/import round trips unchanged.
type NetworkConfig struct {
	VirtualNetworkConfiguration VirtualNetworkConfiguration `json:"VirtualNetworkConfiguration" yaml:"VirtualNetworkConfiguration"`
}

type VirtualNetworkConfiguration struct {
	Dns                 Dns                  `json:"Dns" yaml:"Dns"`
	VirtualNetworkSites []VirtualNetworkSite `json:"VirtualNetworkSites" yaml:"VirtualNetworkSites"`
}

type Dns struct {
	DnsServers []DnsServer `json:"DnsServers" yaml:"DnsServers"`
}

type DnsServer struct {
	Name      string `json:"Name" yaml:"Name"`
	IPAddress string `json:"IPAddress" yaml:"IPAddress"`
}

type DnsServerRef struct {
	Name string `json:"Name" yaml:"Name"`
}

type Subnet struct {
	Name          string `json:"Name" yaml:"Name"`
	AddressPrefix string `json:"AddressPrefix" yaml:"AddressPrefix"`
}

type VirtualNetworkSite struct {
	Name          string         `json:"Name" yaml:"Name"`
	AffinityGroup string         `json:"AffinityGroup" yaml:"AffinityGroup"`
	AddressSpace  []string       `json:"AddressSpace" yaml:"AddressSpace"`
	Subnets       []Subnet       `json:"Subnets" yaml:"Subnets"`
	DnsServersRef []DnsServerRef `json:"DnsServersRef" yaml:"DnsServersRef"`
}

var dnsNameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9-]{0,19}$`)

// namesEqual is the one collation rule for every identifier in the document.
func namesEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func findDnsServer(cfg NetworkConfig, name string) (DnsServer, bool) {
	for _, s := range cfg.VirtualNetworkConfiguration.Dns.DnsServers {
		if namesEqual(s.Name, name) {
			return s, true
		}
	}
	return DnsServer{}, false
}

func findDnsServerByIP(cfg NetworkConfig, ip string) (DnsServer, bool) {
	for _, s := range cfg.VirtualNetworkConfiguration.Dns.DnsServers {
		if s.IPAddress == ip {
			return s, true
		}
	}
	return DnsServer{}, false
}

func findSite(cfg NetworkConfig, name string) (VirtualNetworkSite, bool) {
	for _, s := range cfg.VirtualNetworkConfiguration.VirtualNetworkSites {
		if namesEqual(s.Name, name) {
			return s, true
		}
	}
	return VirtualNetworkSite{}, false
}

func sitesReferencing(cfg NetworkConfig, dnsName string) []string {
	var out []string
	for _, site := range cfg.VirtualNetworkConfiguration.VirtualNetworkSites {
		for _, ref := range site.DnsServersRef {
			if namesEqual(ref.Name, dnsName) {
				out = append(out, site.Name)
				break
			}
		}
	}
	return out
}

func dnsServerNames(cfg NetworkConfig) []string {
	servers := cfg.VirtualNetworkConfiguration.Dns.DnsServers
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, s.Name)
	}
	return out
}

// validateConfig checks the document-wide invariants: unique names and IPs,
// well-formed prefixes, subnets contained in their site's address space, and
// DNS references resolving to registered servers.
func validateConfig(cfg NetworkConfig) error {
	seenName := map[string]bool{}
	seenIP := map[string]bool{}
	for _, s := range cfg.VirtualNetworkConfiguration.Dns.DnsServers {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if seenName[key] {
			return opErrorf(KindDuplicateEntity, "a DNS server named %q already exists", s.Name)
		}
		seenName[key] = true
		if _, err := parseIPv4(s.IPAddress, "IPAddress"); err != nil {
			return err
		}
		if seenIP[s.IPAddress] {
			return opErrorf(KindDuplicateEntity, "a DNS server with address %s already exists", s.IPAddress)
		}
		seenIP[s.IPAddress] = true
	}

	seenSite := map[string]bool{}
	for _, site := range cfg.VirtualNetworkConfiguration.VirtualNetworkSites {
		key := strings.ToLower(strings.TrimSpace(site.Name))
		if seenSite[key] {
			return opErrorf(KindDuplicateEntity, "a virtual network named %q already exists", site.Name)
		}
		seenSite[key] = true
		if err := validateSiteAddressing(site); err != nil {
			return err
		}
		for _, ref := range site.DnsServersRef {
			if _, ok := findDnsServer(cfg, ref.Name); !ok {
				return opErrorf(KindNotFound, "virtual network %q references unknown DNS server %q", site.Name, ref.Name)
			}
		}
	}
	return nil
}

func validateSiteAddressing(site VirtualNetworkSite) error {
	type span struct{ lo, hi [4]byte }
	spaces := make([]span, 0, len(site.AddressSpace))
	for _, raw := range site.AddressSpace {
		lo, hi, err := parsePrefixRange(raw, "AddressSpace")
		if err != nil {
			return err
		}
		spaces = append(spaces, span{lo, hi})
	}
	for _, sub := range site.Subnets {
		lo, hi, err := parsePrefixRange(sub.AddressPrefix, "AddressPrefix")
		if err != nil {
			return err
		}
		contained := false
		for _, sp := range spaces {
			if ipInRange(sp.lo, sp.hi, lo) && ipInRange(sp.lo, sp.hi, hi) {
				contained = true
				break
			}
		}
		if !contained {
			return opErrorf(KindOutOfRange, "subnet %q (%s) of virtual network %q is not contained in its address space",
				sub.Name, sub.AddressPrefix, site.Name)
		}
	}
	return nil
}

// parsePrefixRange resolves "ip/cidr" to its inclusive address range.
func parsePrefixRange(raw, param string) (lo, hi [4]byte, err error) {
	raw = strings.TrimSpace(raw)
	slash := strings.IndexByte(raw, '/')
	if slash < 0 {
		return lo, hi, opErrorf(KindInvalidFormat, "%s: %q is not in ip/cidr form", param, raw)
	}
	addr, err := parseIPv4(raw[:slash], param)
	if err != nil {
		return lo, hi, err
	}
	cidr, cerr := strconv.Atoi(raw[slash+1:])
	if cerr != nil || cidr < 0 || cidr > 32 {
		return lo, hi, opErrorf(KindInvalidFormat, "%s: %q has an invalid cidr", param, raw)
	}
	lo, hi = ipRange(addr, networkMask(cidr))
	return lo, hi, nil
}
