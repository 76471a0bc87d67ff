package main

import "strings"

// VnetOptions carries the raw inputs of a create request. Nil/empty means
// the option was not supplied; defaults are resolved by the allocator.
type VnetOptions struct {
	Name          string `json:"name"`
	AddressSpace  string `json:"addressSpace,omitempty"`
	Cidr          *int   `json:"cidr,omitempty"`
	MaxVMCount    *int   `json:"maxVMCount,omitempty"`
	SubnetStartIP string `json:"subnetStartIP,omitempty"`
	SubnetCidr    *int   `json:"subnetCidr,omitempty"`
	SubnetVMCount *int   `json:"subnetVMCount,omitempty"`
	SubnetName    string `json:"subnetName,omitempty"`
	DnsServerName string `json:"dnsServerName,omitempty"`
	AffinityGroup string `json:"affinityGroup,omitempty"`
	Location      string `json:"location,omitempty"`
}

// AllocatorDefaults are policy choices, kept configurable on purpose.
type AllocatorDefaults struct {
	AddressSpaceStart string
	SubnetName        string
}

func defaultAllocatorDefaults() AllocatorDefaults {
	return AllocatorDefaults{
		AddressSpaceStart: "10.0.0.0",
		SubnetName:        "Subnet-1",
	}
}

type vnetLayout struct {
	AddressSpace string
	SubnetName   string
	SubnetPrefix string
}

func (o VnetOptions) present(name string) bool {
	switch name {
	case "addressSpace":
		return o.AddressSpace != ""
	case "cidr":
		return o.Cidr != nil
	case "maxVMCount":
		return o.MaxVMCount != nil
	case "subnetStartIP":
		return o.SubnetStartIP != ""
	case "subnetCidr":
		return o.SubnetCidr != nil
	case "subnetVMCount":
		return o.SubnetVMCount != nil
	case "affinityGroup":
		return o.AffinityGroup != ""
	case "location":
		return o.Location != ""
	}
	return false
}

// Sizing options only make sense relative to an explicit address space, and
// subnet placement only relative to explicit sizing. Checked before any IP
// text is parsed.
var vnetDependencyRules = []struct {
	trigger string
	dep     Requirement
}{
	{"cidr", allOf{param("addressSpace")}},
	{"maxVMCount", allOf{param("addressSpace")}},
	{"subnetStartIP", allOf{param("addressSpace"), anyOf{"cidr", "maxVMCount"}}},
	{"subnetCidr", allOf{param("subnetStartIP")}},
	{"subnetVMCount", allOf{param("subnetStartIP")}},
}

func checkVnetDependencies(opts VnetOptions) error {
	if opts.present("cidr") && opts.present("maxVMCount") {
		return opErrorf(KindMutuallyExclusiveParameters, "cidr and maxVMCount cannot both be specified")
	}
	if opts.present("subnetCidr") && opts.present("subnetVMCount") {
		return opErrorf(KindMutuallyExclusiveParameters, "subnetCidr and subnetVMCount cannot both be specified")
	}
	if opts.present("affinityGroup") && opts.present("location") {
		return opErrorf(KindMutuallyExclusiveParameters, "affinityGroup and location cannot both be specified")
	}
	for _, rule := range vnetDependencyRules {
		if err := verifyDependentParams(rule.trigger, rule.dep, opts.present); err != nil {
			return err
		}
	}
	return nil
}

// resolveVnetLayout turns raw options into a fully specified address layout,
// failing fast on the first inconsistent input.
func resolveVnetLayout(opts VnetOptions, defs AllocatorDefaults) (vnetLayout, error) {
	if err := checkVnetDependencies(opts); err != nil {
		return vnetLayout{}, err
	}

	spaceRaw := opts.AddressSpace
	if spaceRaw == "" {
		spaceRaw = defs.AddressSpaceStart
	}
	spaceIP, err := parseIPv4(spaceRaw, "addressSpace")
	if err != nil {
		return vnetLayout{}, err
	}
	desc, ok := classifyPrivateSpace(spaceIP)
	if !ok {
		return vnetLayout{}, opErrorf(KindInvalidArgument,
			"addressSpace: %s is not in a private address space (%s)",
			ipString(spaceIP), strings.Join(privateSpaceNames(), ", "))
	}

	cidr := desc.DefaultCidr
	cidrParam := "default cidr"
	switch {
	case opts.MaxVMCount != nil:
		cidr, err = cidrFromHostCount(*opts.MaxVMCount, "maxVMCount")
		if err != nil {
			return vnetLayout{}, err
		}
		cidrParam = "maxVMCount"
	case opts.Cidr != nil:
		cidr = *opts.Cidr
		cidrParam = "cidr"
	}
	if err := verifyCidr(cidr, desc.StartCidr, desc.EndCidr, cidrParam); err != nil {
		return vnetLayout{}, err
	}

	lo, hi := ipRange(spaceIP, networkMask(cidr))

	subnetIP := lo
	if opts.SubnetStartIP != "" {
		subnetIP, err = parseIPv4(opts.SubnetStartIP, "subnetStartIP")
		if err != nil {
			return vnetLayout{}, err
		}
		if !ipInRange(lo, hi, subnetIP) {
			return vnetLayout{}, opErrorf(KindOutOfRange,
				"subnetStartIP: %s is outside the address space range [%s, %s]",
				ipString(subnetIP), ipString(lo), ipString(hi))
		}
	}

	subnetCidr := defaultSubnetCidr(cidr, desc.EndCidr)
	subnetParam := "default subnet cidr"
	switch {
	case opts.SubnetVMCount != nil:
		subnetCidr, err = cidrFromHostCount(*opts.SubnetVMCount, "subnetVMCount")
		if err != nil {
			return vnetLayout{}, err
		}
		subnetParam = "subnetVMCount"
	case opts.SubnetCidr != nil:
		subnetCidr = *opts.SubnetCidr
		subnetParam = "subnetCidr"
	}
	// A subnet must be at least as specific as its address space.
	if err := verifyCidr(subnetCidr, cidr, desc.EndCidr, subnetParam); err != nil {
		return vnetLayout{}, err
	}

	subnetName := opts.SubnetName
	if subnetName == "" {
		subnetName = defs.SubnetName
	}

	return vnetLayout{
		AddressSpace: ipString(spaceIP) + "/" + itoa(cidr),
		SubnetName:   subnetName,
		SubnetPrefix: ipString(subnetIP) + "/" + itoa(subnetCidr),
	}, nil
}
