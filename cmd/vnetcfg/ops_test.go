package main

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func testEngine(t *testing.T, tenant string) (*Engine, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return &Engine{
		Store:    newSqliteStore(db, tenant),
		Affinity: &sqliteAffinityResolver{db: db},
		Defaults: defaultAllocatorDefaults(),
	}, db
}

func TestRegisterDnsServerDuplicates(t *testing.T) {
	engine, _ := testEngine(t, "t-register")

	entry, err := engine.RegisterDnsServer("NsOne", "10.1.0.4")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if entry.Name != "NsOne" || entry.IPAddress != "10.1.0.4" {
		t.Fatalf("unexpected entry: %+v", entry)
	}

	// Name collision is case-insensitive.
	if _, err := engine.RegisterDnsServer("nsone", "10.1.0.5"); errorKind(err) != KindDuplicateEntity {
		t.Fatalf("expected DuplicateEntity for name, got %v", err)
	}
	if _, err := engine.RegisterDnsServer("NsTwo", "10.1.0.4"); errorKind(err) != KindDuplicateEntity {
		t.Fatalf("expected DuplicateEntity for address, got %v", err)
	}

	cfg, err := engine.Config()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(cfg.VirtualNetworkConfiguration.Dns.DnsServers) != 1 {
		t.Fatalf("failed registrations must not change the document: %+v", cfg)
	}
}

func TestRegisterDnsServerSynthesizedName(t *testing.T) {
	engine, _ := testEngine(t, "t-synth")

	entry, err := engine.RegisterDnsServer("", "10.2.0.4")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(entry.Name, "DNS-") || len(entry.Name) != len("DNS-")+8 {
		t.Fatalf("synthesized name: got %q", entry.Name)
	}

	if _, err := engine.RegisterDnsServer("9bad", "10.2.0.5"); errorKind(err) != KindInvalidFormat {
		t.Fatalf("expected InvalidFormat for bad name, got %v", err)
	}
	if _, err := engine.RegisterDnsServer("Ns", "300.2.0.5"); errorKind(err) != KindInvalidFormat {
		t.Fatalf("expected InvalidFormat for bad address, got %v", err)
	}
}

func TestUnregisterDnsServer(t *testing.T) {
	engine, _ := testEngine(t, "t-unregister")

	if _, err := engine.RegisterDnsServer("NsGone", "10.3.0.4"); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := engine.UnregisterDnsServer("NsGone", "10.3.0.4"); errorKind(err) != KindMutuallyExclusiveParameters {
		t.Fatalf("name and ip together: expected MutuallyExclusiveParameters, got %v", err)
	}
	if _, err := engine.UnregisterDnsServer("", ""); errorKind(err) != KindInvalidArgument {
		t.Fatalf("neither name nor ip: expected InvalidArgument, got %v", err)
	}
	if _, err := engine.UnregisterDnsServer("Missing", ""); errorKind(err) != KindNotFound {
		t.Fatalf("unknown name: expected NotFound, got %v", err)
	}

	entry, err := engine.UnregisterDnsServer("", "10.3.0.4")
	if err != nil {
		t.Fatalf("unregister by ip: %v", err)
	}
	if entry.Name != "NsGone" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	cfg, _ := engine.Config()
	if len(cfg.VirtualNetworkConfiguration.Dns.DnsServers) != 0 {
		t.Fatalf("server not removed: %+v", cfg)
	}
}

func TestUnregisterReferencedDnsServer(t *testing.T) {
	engine, _ := testEngine(t, "t-referenced")

	if _, err := engine.RegisterDnsServer("NsRef", "10.4.0.4"); err != nil {
		t.Fatalf("register: %v", err)
	}
	site, err := engine.CreateVirtualNetwork(VnetOptions{
		Name:          "RefNet",
		DnsServerName: "nsref",
		Location:      "West US",
	})
	if err != nil {
		t.Fatalf("create vnet: %v", err)
	}
	if len(site.DnsServersRef) != 1 || site.DnsServersRef[0].Name != "NsRef" {
		t.Fatalf("reference should resolve to the stored name: %+v", site.DnsServersRef)
	}

	_, err = engine.UnregisterDnsServer("NsRef", "")
	if errorKind(err) != KindReferencedEntity {
		t.Fatalf("expected ReferencedEntity, got %v", err)
	}
	if !strings.Contains(err.Error(), "RefNet") {
		t.Fatalf("error should name the referencing site: %v", err)
	}

	cfg, _ := engine.Config()
	if len(cfg.VirtualNetworkConfiguration.Dns.DnsServers) != 1 {
		t.Fatalf("blocked delete must leave the document unchanged: %+v", cfg)
	}
}

func TestCreateVirtualNetwork(t *testing.T) {
	engine, _ := testEngine(t, "t-create")

	site, err := engine.CreateVirtualNetwork(VnetOptions{Name: "Prod", Location: "West US"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(site.AddressSpace) != 1 || site.AddressSpace[0] != "10.0.0.0/8" {
		t.Fatalf("address space: %+v", site.AddressSpace)
	}
	if len(site.Subnets) != 1 || site.Subnets[0].Name != "Subnet-1" || site.Subnets[0].AddressPrefix != "10.0.0.0/11" {
		t.Fatalf("subnets: %+v", site.Subnets)
	}
	if site.AffinityGroup == "" {
		t.Fatalf("expected a created affinity group")
	}

	if _, err := engine.CreateVirtualNetwork(VnetOptions{Name: "prod", Location: "West US"}); errorKind(err) != KindDuplicateEntity {
		t.Fatalf("expected DuplicateEntity for case-insensitive name, got %v", err)
	}
	if _, err := engine.CreateVirtualNetwork(VnetOptions{Name: "NoPlacement"}); errorKind(err) != KindInvalidArgument {
		t.Fatalf("expected InvalidArgument without placement, got %v", err)
	}
	if _, err := engine.CreateVirtualNetwork(VnetOptions{Name: "TwoPlacements", AffinityGroup: "ag", Location: "West US"}); errorKind(err) != KindMutuallyExclusiveParameters {
		t.Fatalf("expected MutuallyExclusiveParameters, got %v", err)
	}
}

func TestCreateVirtualNetworkDnsRefNotFound(t *testing.T) {
	engine, _ := testEngine(t, "t-dnsref")

	if _, err := engine.RegisterDnsServer("NsA", "10.5.0.4"); err != nil {
		t.Fatalf("register: %v", err)
	}
	_, err := engine.CreateVirtualNetwork(VnetOptions{Name: "Net", DnsServerName: "NsB", Location: "West US"})
	if errorKind(err) != KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "NsA") {
		t.Fatalf("error should list registered servers: %v", err)
	}
}

func TestDeleteVirtualNetwork(t *testing.T) {
	engine, _ := testEngine(t, "t-delete")

	// Empty document: reported no-op, not an error.
	deleted, err := engine.DeleteVirtualNetwork("Test")
	if err != nil || deleted {
		t.Fatalf("empty document: got deleted=%v err=%v", deleted, err)
	}

	if _, err := engine.CreateVirtualNetwork(VnetOptions{Name: "Keeper", Location: "West US"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.DeleteVirtualNetwork("Test"); errorKind(err) != KindNotFound {
		t.Fatalf("expected NotFound with sites present, got %v", err)
	}

	deleted, err = engine.DeleteVirtualNetwork("KEEPER")
	if err != nil || !deleted {
		t.Fatalf("case-insensitive delete: got deleted=%v err=%v", deleted, err)
	}
	cfg, _ := engine.Config()
	if len(cfg.VirtualNetworkConfiguration.VirtualNetworkSites) != 0 {
		t.Fatalf("site not removed: %+v", cfg)
	}
}

func TestAffinityResolver(t *testing.T) {
	_, db := testEngine(t, "t-affinity")
	resolver := &sqliteAffinityResolver{db: db}

	group, err := resolver.Resolve("", "West US")
	if err != nil {
		t.Fatalf("resolve location: %v", err)
	}
	if !group.IsNew || group.Location != "West US" || !strings.HasPrefix(group.Name, "AG-CLI-") {
		t.Fatalf("unexpected group: %+v", group)
	}

	// The created group now resolves by name, case-insensitively.
	again, err := resolver.Resolve(strings.ToLower(group.Name), "")
	if err != nil {
		t.Fatalf("resolve group: %v", err)
	}
	if again.IsNew || again.Name != group.Name {
		t.Fatalf("unexpected group: %+v", again)
	}

	if _, err := resolver.Resolve("", "Atlantis"); errorKind(err) != KindNotFound {
		t.Fatalf("unknown location: expected NotFound, got %v", err)
	}

	_, err = resolver.Resolve("", "Southeast Asia")
	if errorKind(err) != KindUnsupportedCapability {
		t.Fatalf("expected UnsupportedCapability, got %v", err)
	}
	if !strings.Contains(err.Error(), "West US") {
		t.Fatalf("error should list compatible locations: %v", err)
	}

	if _, err := resolver.Resolve("NoSuchGroup", ""); errorKind(err) != KindNotFound {
		t.Fatalf("unknown group: expected NotFound, got %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	engine, _ := testEngine(t, "t-roundtrip")

	if _, err := engine.RegisterDnsServer("NsRt", "10.6.0.4"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := engine.CreateVirtualNetwork(VnetOptions{Name: "RtNet", DnsServerName: "NsRt", Location: "West US"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	cfg, err := engine.Config()
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded NetworkConfig
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := engine.ReplaceConfig(decoded); err != nil {
		t.Fatalf("replace with own export: %v", err)
	}
	back, err := engine.Config()
	if err != nil {
		t.Fatalf("refetch: %v", err)
	}
	rawBack, _ := json.Marshal(back)
	if string(raw) != string(rawBack) {
		t.Fatalf("round trip changed the document:\n%s\n%s", raw, rawBack)
	}
}

func TestReplaceConfigValidation(t *testing.T) {
	engine, _ := testEngine(t, "t-validate")

	bad := NetworkConfig{}
	bad.VirtualNetworkConfiguration.VirtualNetworkSites = []VirtualNetworkSite{{
		Name:          "Dangling",
		AddressSpace:  []string{"10.0.0.0/8"},
		Subnets:       []Subnet{{Name: "Subnet-1", AddressPrefix: "10.0.0.0/11"}},
		DnsServersRef: []DnsServerRef{{Name: "Ghost"}},
	}}
	if err := engine.ReplaceConfig(bad); errorKind(err) != KindNotFound {
		t.Fatalf("dangling reference: expected NotFound, got %v", err)
	}

	escape := NetworkConfig{}
	escape.VirtualNetworkConfiguration.VirtualNetworkSites = []VirtualNetworkSite{{
		Name:         "Escapee",
		AddressSpace: []string{"192.168.0.0/24"},
		Subnets:      []Subnet{{Name: "Subnet-1", AddressPrefix: "192.168.1.0/28"}},
	}}
	if err := engine.ReplaceConfig(escape); errorKind(err) != KindOutOfRange {
		t.Fatalf("escaping subnet: expected OutOfRange, got %v", err)
	}

	dup := NetworkConfig{}
	dup.VirtualNetworkConfiguration.Dns.DnsServers = []DnsServer{
		{Name: "NsDup", IPAddress: "10.7.0.4"},
		{Name: "nsdup", IPAddress: "10.7.0.5"},
	}
	if err := engine.ReplaceConfig(dup); errorKind(err) != KindDuplicateEntity {
		t.Fatalf("duplicate names: expected DuplicateEntity, got %v", err)
	}
}
