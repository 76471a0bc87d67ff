package main

import (
	"database/sql"
	"embed"
	"log"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migFS embed.FS

func mustEnv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func sqliteDSN(raw string) string {
	if strings.Contains(raw, "_pragma=foreign_keys") {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + "_pragma=foreign_keys(1)"
}

func main() {
	dbPath := mustEnv("DB_PATH", "./vnetcfg.sqlite")
	listen := mustEnv("LISTEN_ADDR", "0.0.0.0:8080")
	tenant := mustEnv("TENANT", "default")

	db, err := sql.Open("sqlite", sqliteDSN(dbPath))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		log.Fatal(err)
	}

	engine := &Engine{
		Store:    newSqliteStore(db, tenant),
		Affinity: &sqliteAffinityResolver{db: db},
		Defaults: defaultAllocatorDefaults(),
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(200, "ok") })

	r.GET("/api/config", func(c *gin.Context) {
		cfg, err := engine.Config()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, cfg)
	})
	r.PUT("/api/config", func(c *gin.Context) {
		before, _ := engine.Config()
		cfg, err := importConfig(c, engine)
		if err != nil {
			fail(c, err)
			return
		}
		writeAudit(db, c, auditRecord{
			Action:     "replace",
			EntityType: "configuration",
			Before:     before,
			After:      cfg,
		})
		c.JSON(200, cfg)
	})

	r.GET("/api/dns-servers", func(c *gin.Context) {
		cfg, err := engine.Config()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, cfg.VirtualNetworkConfiguration.Dns.DnsServers)
	})
	r.POST("/api/dns-servers", func(c *gin.Context) {
		var req struct {
			Name      string `json:"name"`
			IPAddress string `json:"ipAddress"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, opErrorf(KindInvalidFormat, "request body: %v", err))
			return
		}
		entry, err := engine.RegisterDnsServer(req.Name, req.IPAddress)
		if err != nil {
			fail(c, err)
			return
		}
		writeAudit(db, c, auditRecord{
			Action:      "register",
			EntityType:  "dns_server",
			EntityLabel: entry.Name,
			After:       entry,
		})
		c.JSON(201, entry)
	})
	r.DELETE("/api/dns-servers", func(c *gin.Context) {
		entry, err := engine.UnregisterDnsServer(c.Query("name"), c.Query("ip"))
		if err != nil {
			fail(c, err)
			return
		}
		writeAudit(db, c, auditRecord{
			Action:      "unregister",
			EntityType:  "dns_server",
			EntityLabel: entry.Name,
			Before:      entry,
		})
		c.JSON(200, entry)
	})

	r.GET("/api/networks", func(c *gin.Context) {
		cfg, err := engine.Config()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, cfg.VirtualNetworkConfiguration.VirtualNetworkSites)
	})
	r.POST("/api/networks", func(c *gin.Context) {
		var opts VnetOptions
		if err := c.ShouldBindJSON(&opts); err != nil {
			fail(c, opErrorf(KindInvalidFormat, "request body: %v", err))
			return
		}
		site, err := engine.CreateVirtualNetwork(opts)
		if err != nil {
			fail(c, err)
			return
		}
		writeAudit(db, c, auditRecord{
			Action:      "create",
			EntityType:  "virtual_network",
			EntityLabel: site.Name,
			After:       site,
		})
		c.JSON(201, site)
	})
	r.DELETE("/api/networks/:name", func(c *gin.Context) {
		name := c.Param("name")
		deleted, err := engine.DeleteVirtualNetwork(name)
		if err != nil {
			fail(c, err)
			return
		}
		if deleted {
			writeAudit(db, c, auditRecord{
				Action:      "delete",
				EntityType:  "virtual_network",
				EntityLabel: name,
			})
		}
		c.JSON(200, gin.H{"deleted": deleted})
	})

	r.GET("/api/affinity-groups", func(c *gin.Context) {
		groups, err := listAffinityGroups(db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, groups)
	})
	r.GET("/api/audit", func(c *gin.Context) {
		entries, err := listAuditEntries(db)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(200, entries)
	})

	r.GET("/export/json", func(c *gin.Context) { exportOrFail(c, engine, exportJSON) })
	r.GET("/export/yaml", func(c *gin.Context) { exportOrFail(c, engine, exportYAML) })
	r.GET("/export/xlsx", func(c *gin.Context) { exportOrFail(c, engine, exportXLSX) })
	r.POST("/import", func(c *gin.Context) {
		cfg, err := importConfig(c, engine)
		if err != nil {
			fail(c, err)
			return
		}
		writeAudit(db, c, auditRecord{
			Action:     "import",
			EntityType: "configuration",
			After:      cfg,
		})
		c.JSON(200, cfg)
	})

	log.Printf("vnetcfg listening on %s (db %s, tenant %s)", listen, dbPath, tenant)
	if err := r.Run(listen); err != nil {
		log.Fatal(err)
	}
}

func fail(c *gin.Context, err error) {
	kind := errorKind(err)
	if kind == "" {
		kind = "Internal"
	}
	c.JSON(statusForError(err), gin.H{"error": kind, "message": err.Error()})
}

func exportOrFail(c *gin.Context, engine *Engine, fn func(*gin.Context, *Engine) error) {
	if err := fn(c, engine); err != nil {
		fail(c, err)
	}
}
