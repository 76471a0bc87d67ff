package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

func exportJSON(c *gin.Context, engine *Engine) error {
	cfg, err := engine.Config()
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=vnetcfg_export.json")
	c.String(200, string(out))
	return nil
}

func exportYAML(c *gin.Context, engine *Engine) error {
	cfg, err := engine.Config()
	if err != nil {
		return err
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	c.Header("Content-Type", "application/x-yaml; charset=utf-8")
	c.Header("Content-Disposition", "attachment; filename=vnetcfg_export.yaml")
	c.String(200, string(out))
	return nil
}

func exportXLSX(c *gin.Context, engine *Engine) error {
	cfg, err := engine.Config()
	if err != nil {
		return err
	}
	f := excelize.NewFile()
	dnsSheet := "DnsServers"
	f.SetSheetName("Sheet1", dnsSheet)
	writeSheetRows(f, dnsSheet, buildDnsSheet(cfg))

	siteSheet := "VirtualNetworkSites"
	f.NewSheet(siteSheet)
	writeSheetRows(f, siteSheet, buildSitesSheet(cfg))

	subnetSheet := "Subnets"
	f.NewSheet(subnetSheet)
	writeSheetRows(f, subnetSheet, buildSubnetsSheet(cfg))

	buf, err := f.WriteToBuffer()
	if err != nil {
		return err
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=vnetcfg_export.xlsx")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	return nil
}

func buildDnsSheet(cfg NetworkConfig) [][]interface{} {
	out := [][]interface{}{{"name", "ip_address"}}
	for _, s := range cfg.VirtualNetworkConfiguration.Dns.DnsServers {
		out = append(out, []interface{}{s.Name, s.IPAddress})
	}
	return out
}

func buildSitesSheet(cfg NetworkConfig) [][]interface{} {
	out := [][]interface{}{{"name", "affinity_group", "address_space", "dns_servers"}}
	for _, s := range cfg.VirtualNetworkConfiguration.VirtualNetworkSites {
		var refs []string
		for _, ref := range s.DnsServersRef {
			refs = append(refs, ref.Name)
		}
		out = append(out, []interface{}{s.Name, s.AffinityGroup, strings.Join(s.AddressSpace, ", "), strings.Join(refs, ", ")})
	}
	return out
}

func buildSubnetsSheet(cfg NetworkConfig) [][]interface{} {
	out := [][]interface{}{{"site", "name", "address_prefix"}}
	for _, s := range cfg.VirtualNetworkConfiguration.VirtualNetworkSites {
		for _, sub := range s.Subnets {
			out = append(out, []interface{}{s.Name, sub.Name, sub.AddressPrefix})
		}
	}
	return out
}

func writeSheetRows(f *excelize.File, sheet string, rows [][]interface{}) {
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = f.SetSheetRow(sheet, cell, &row)
	}
}

// importConfig replaces the stored document with an uploaded one, JSON or
// YAML by Content-Type, after full invariant validation.
func importConfig(c *gin.Context, engine *Engine) (NetworkConfig, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return NetworkConfig{}, err
	}
	var cfg NetworkConfig
	contentType := c.ContentType()
	if strings.Contains(contentType, "yaml") {
		if err := yaml.Unmarshal(body, &cfg); err != nil {
			return NetworkConfig{}, opErrorf(KindInvalidFormat, "import: %v", err)
		}
	} else {
		if err := json.Unmarshal(body, &cfg); err != nil {
			return NetworkConfig{}, opErrorf(KindInvalidFormat, "import: %v", err)
		}
	}
	if err := engine.ReplaceConfig(cfg); err != nil {
		return NetworkConfig{}, err
	}
	return cfg, nil
}
