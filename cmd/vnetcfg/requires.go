package main

import "strings"

// Requirement is a tree of parameter names. allOf nodes need every child
// satisfied; anyOf nodes need at least one listed parameter present and
// report the whole group as a single "a or b" item when none is.
type Requirement interface {
	describe() []string
	missing(present func(string) bool) []string
}

type param string

func (p param) describe() []string { return []string{string(p)} }

func (p param) missing(present func(string) bool) []string {
	if present(string(p)) {
		return nil
	}
	return []string{string(p)}
}

type anyOf []string

func (g anyOf) describe() []string { return []string{strings.Join(g, " or ")} }

func (g anyOf) missing(present func(string) bool) []string {
	for _, name := range g {
		if present(name) {
			return nil
		}
	}
	return g.describe()
}

type allOf []Requirement

func (g allOf) describe() []string {
	var out []string
	for _, r := range g {
		out = append(out, r.describe()...)
	}
	return out
}

func (g allOf) missing(present func(string) bool) []string {
	var out []string
	for _, r := range g {
		out = append(out, r.missing(present)...)
	}
	return out
}

// verifyDependentParams enforces "trigger requires dep". An absent trigger
// satisfies the rule vacuously.
func verifyDependentParams(trigger string, dep Requirement, present func(string) bool) error {
	if !present(trigger) {
		return nil
	}
	miss := dep.missing(present)
	if len(miss) == 0 {
		return nil
	}
	verb := "is"
	if len(miss) > 1 {
		verb = "are"
	}
	return opErrorf(KindMissingDependentParameters,
		"%s requires %s, but %s %s not specified",
		trigger, strings.Join(dep.describe(), ", "), strings.Join(miss, ", "), verb)
}
