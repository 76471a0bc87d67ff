package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Engine holds the collaborators of every mutating operation. Each operation
// is one fetch, an in-memory edit, and at most one replace; a failed
// validation leaves the stored document untouched.
type Engine struct {
	Store    ConfigStore
	Affinity AffinityResolver
	Defaults AllocatorDefaults
}

func (e *Engine) Config() (NetworkConfig, error) {
	return e.Store.Fetch()
}

// ReplaceConfig is the whole-document import path. The incoming document is
// validated against every invariant before it overwrites the stored one.
func (e *Engine) ReplaceConfig(cfg NetworkConfig) error {
	if err := validateConfig(cfg); err != nil {
		return err
	}
	return e.Store.Replace(cfg)
}

// RegisterDnsServer appends a server entry. A blank name gets a synthesized
// one, returned to the caller since it cannot be recovered later.
func (e *Engine) RegisterDnsServer(name, ip string) (DnsServer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "DNS-" + randomSuffix()
	} else if !dnsNameRe.MatchString(name) {
		return DnsServer{}, opErrorf(KindInvalidFormat,
			"dnsServerName: %q must start with a letter and contain up to 20 letters, digits and dashes", name)
	}
	addr, err := parseIPv4(ip, "dnsServerIP")
	if err != nil {
		return DnsServer{}, err
	}

	cfg, err := e.Store.Fetch()
	if err != nil {
		return DnsServer{}, err
	}
	if existing, ok := findDnsServer(cfg, name); ok {
		return DnsServer{}, opErrorf(KindDuplicateEntity, "a DNS server named %q is already registered", existing.Name)
	}
	canonical := ipString(addr)
	if existing, ok := findDnsServerByIP(cfg, canonical); ok {
		return DnsServer{}, opErrorf(KindDuplicateEntity,
			"address %s is already registered as DNS server %q", canonical, existing.Name)
	}

	entry := DnsServer{Name: name, IPAddress: canonical}
	cfg.VirtualNetworkConfiguration.Dns.DnsServers = append(cfg.VirtualNetworkConfiguration.Dns.DnsServers, entry)
	if err := e.Store.Replace(cfg); err != nil {
		return DnsServer{}, err
	}
	return entry, nil
}

// UnregisterDnsServer removes an entry located by name or by address, never
// both. Deletion is blocked, not cascaded, while any site references it.
func (e *Engine) UnregisterDnsServer(name, ip string) (DnsServer, error) {
	name = strings.TrimSpace(name)
	ip = strings.TrimSpace(ip)
	if name != "" && ip != "" {
		return DnsServer{}, opErrorf(KindMutuallyExclusiveParameters, "dnsServerName and dnsServerIP cannot both be specified")
	}
	if name == "" && ip == "" {
		return DnsServer{}, opErrorf(KindInvalidArgument, "either dnsServerName or dnsServerIP must be specified")
	}

	cfg, err := e.Store.Fetch()
	if err != nil {
		return DnsServer{}, err
	}
	var entry DnsServer
	var ok bool
	if name != "" {
		entry, ok = findDnsServer(cfg, name)
		if !ok {
			return DnsServer{}, opErrorf(KindNotFound, "no DNS server named %q is registered", name)
		}
	} else {
		addr, perr := parseIPv4(ip, "dnsServerIP")
		if perr != nil {
			return DnsServer{}, perr
		}
		entry, ok = findDnsServerByIP(cfg, ipString(addr))
		if !ok {
			return DnsServer{}, opErrorf(KindNotFound, "no DNS server with address %s is registered", ipString(addr))
		}
	}

	if refs := sitesReferencing(cfg, entry.Name); len(refs) > 0 {
		return DnsServer{}, opErrorf(KindReferencedEntity,
			"DNS server %q is referenced by virtual network %q and cannot be unregistered", entry.Name, refs[0])
	}

	servers := cfg.VirtualNetworkConfiguration.Dns.DnsServers
	kept := make([]DnsServer, 0, len(servers)-1)
	for _, s := range servers {
		if !namesEqual(s.Name, entry.Name) {
			kept = append(kept, s)
		}
	}
	cfg.VirtualNetworkConfiguration.Dns.DnsServers = kept
	if err := e.Store.Replace(cfg); err != nil {
		return DnsServer{}, err
	}
	return entry, nil
}

// CreateVirtualNetwork resolves the address layout and placement, then
// appends the new site.
func (e *Engine) CreateVirtualNetwork(opts VnetOptions) (VirtualNetworkSite, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return VirtualNetworkSite{}, opErrorf(KindInvalidArgument, "name: a virtual network name is required")
	}
	if opts.AffinityGroup == "" && opts.Location == "" {
		return VirtualNetworkSite{}, opErrorf(KindInvalidArgument, "either affinityGroup or location must be specified")
	}

	layout, err := resolveVnetLayout(opts, e.Defaults)
	if err != nil {
		return VirtualNetworkSite{}, err
	}

	cfg, err := e.Store.Fetch()
	if err != nil {
		return VirtualNetworkSite{}, err
	}
	if existing, ok := findSite(cfg, name); ok {
		return VirtualNetworkSite{}, opErrorf(KindDuplicateEntity, "a virtual network named %q already exists", existing.Name)
	}

	var refs []DnsServerRef
	if opts.DnsServerName != "" {
		server, ok := findDnsServer(cfg, opts.DnsServerName)
		if !ok {
			return VirtualNetworkSite{}, opErrorf(KindNotFound,
				"no DNS server named %q is registered; registered servers: %s",
				opts.DnsServerName, strings.Join(dnsServerNames(cfg), ", "))
		}
		refs = append(refs, DnsServerRef{Name: server.Name})
	}

	group, err := e.Affinity.Resolve(opts.AffinityGroup, opts.Location)
	if err != nil {
		return VirtualNetworkSite{}, err
	}

	site := VirtualNetworkSite{
		Name:          name,
		AffinityGroup: group.Name,
		AddressSpace:  []string{layout.AddressSpace},
		Subnets:       []Subnet{{Name: layout.SubnetName, AddressPrefix: layout.SubnetPrefix}},
		DnsServersRef: refs,
	}
	cfg.VirtualNetworkConfiguration.VirtualNetworkSites = append(cfg.VirtualNetworkConfiguration.VirtualNetworkSites, site)
	if err := e.Store.Replace(cfg); err != nil {
		return VirtualNetworkSite{}, err
	}
	return site, nil
}

// DeleteVirtualNetwork removes a site by name. An entirely empty document is
// a reported no-op (false, nil); a populated document without the named site
// is a NotFound error.
func (e *Engine) DeleteVirtualNetwork(name string) (bool, error) {
	cfg, err := e.Store.Fetch()
	if err != nil {
		return false, err
	}
	sites := cfg.VirtualNetworkConfiguration.VirtualNetworkSites
	if len(sites) == 0 {
		return false, nil
	}
	if _, ok := findSite(cfg, name); !ok {
		return false, opErrorf(KindNotFound, "no virtual network named %q exists", name)
	}
	kept := make([]VirtualNetworkSite, 0, len(sites)-1)
	for _, s := range sites {
		if !namesEqual(s.Name, name) {
			kept = append(kept, s)
		}
	}
	cfg.VirtualNetworkConfiguration.VirtualNetworkSites = kept
	if err := e.Store.Replace(cfg); err != nil {
		return false, err
	}
	return true, nil
}

func randomSuffix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
