package main

import (
	"database/sql"
	"errors"
	"sort"
	"strings"
)

// Required service capability for hosting virtual networks.
const vnetCapability = "PersistentVMRole"

type AffinityGroup struct {
	Name     string
	Location string
	IsNew    bool
}

// AffinityResolver resolves a create request's placement: an existing
// affinity group by name, or a location under which a new group is created.
type AffinityResolver interface {
	Resolve(name, location string) (AffinityGroup, error)
}

type sqliteAffinityResolver struct {
	db *sql.DB
}

func (r *sqliteAffinityResolver) Resolve(name, location string) (AffinityGroup, error) {
	if name != "" {
		return r.resolveGroup(name)
	}
	return r.resolveLocation(location)
}

func (r *sqliteAffinityResolver) resolveGroup(name string) (AffinityGroup, error) {
	var stored, loc, caps string
	err := r.db.QueryRow(`
		SELECT name, location, capabilities FROM affinity_groups
		WHERE name=? COLLATE NOCASE`, strings.TrimSpace(name)).Scan(&stored, &loc, &caps)
	if errors.Is(err, sql.ErrNoRows) {
		return AffinityGroup{}, opErrorf(KindNotFound, "affinity group %q does not exist", name)
	}
	if err != nil {
		return AffinityGroup{}, err
	}
	if !capabilityListed(caps, vnetCapability) {
		compatible, lerr := r.compatibleGroups()
		if lerr != nil {
			return AffinityGroup{}, lerr
		}
		return AffinityGroup{}, opErrorf(KindUnsupportedCapability,
			"affinity group %q does not support service %s; groups that do: %s",
			stored, vnetCapability, strings.Join(compatible, ", "))
	}
	return AffinityGroup{Name: stored, Location: loc}, nil
}

func (r *sqliteAffinityResolver) resolveLocation(location string) (AffinityGroup, error) {
	var stored, caps string
	err := r.db.QueryRow(`
		SELECT name, capabilities FROM locations
		WHERE name=? COLLATE NOCASE`, strings.TrimSpace(location)).Scan(&stored, &caps)
	if errors.Is(err, sql.ErrNoRows) {
		compatible, lerr := r.compatibleLocations()
		if lerr != nil {
			return AffinityGroup{}, lerr
		}
		return AffinityGroup{}, opErrorf(KindNotFound,
			"location %q does not exist; known locations: %s", location, strings.Join(compatible, ", "))
	}
	if err != nil {
		return AffinityGroup{}, err
	}
	if !capabilityListed(caps, vnetCapability) {
		compatible, lerr := r.compatibleLocations()
		if lerr != nil {
			return AffinityGroup{}, lerr
		}
		return AffinityGroup{}, opErrorf(KindUnsupportedCapability,
			"location %q does not support service %s; locations that do: %s",
			stored, vnetCapability, strings.Join(compatible, ", "))
	}
	group := AffinityGroup{Name: "AG-CLI-" + randomSuffix(), Location: stored, IsNew: true}
	_, err = r.db.Exec(`
		INSERT INTO affinity_groups(name, location, capabilities)
		VALUES(?, ?, ?)`, group.Name, group.Location, vnetCapability)
	if err != nil {
		return AffinityGroup{}, err
	}
	return group, nil
}

func (r *sqliteAffinityResolver) compatibleGroups() ([]string, error) {
	return r.namesWithCapability(`SELECT name, capabilities FROM affinity_groups`)
}

func (r *sqliteAffinityResolver) compatibleLocations() ([]string, error) {
	return r.namesWithCapability(`SELECT name, capabilities FROM locations`)
}

func (r *sqliteAffinityResolver) namesWithCapability(query string) ([]string, error) {
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name, caps string
		if err := rows.Scan(&name, &caps); err != nil {
			return nil, err
		}
		if capabilityListed(caps, vnetCapability) {
			out = append(out, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

func capabilityListed(caps, want string) bool {
	for _, part := range strings.Split(caps, ",") {
		if strings.EqualFold(strings.TrimSpace(part), want) {
			return true
		}
	}
	return false
}

func listAffinityGroups(db *sql.DB) ([]AffinityGroup, error) {
	rows, err := db.Query(`SELECT name, location FROM affinity_groups ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AffinityGroup
	for rows.Next() {
		var g AffinityGroup
		if err := rows.Scan(&g.Name, &g.Location); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
