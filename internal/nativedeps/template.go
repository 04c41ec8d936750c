package nativedeps

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"mvdan.cc/sh/v3/shell"
)

// Vars is the variable environment a step's templates expand against.
type Vars map[string]string

// shellSpecials are consulted by the expander itself and never count as undefined.
var shellSpecials = []string{"IFS", "HOME", "USERPROFILE", "PWD", "OLDPWD", "OPTIND"}

// lookup returns an expansion callback that records undefined names.
func (v Vars) lookup(missing *[]string) func(string) string {
	return func(name string) string {
		val, ok := v[name]
		if !ok && !slices.Contains(shellSpecials, name) && !slices.Contains(*missing, name) {
			*missing = append(*missing, name)
		}
		return val
	}
}

// Fields splits and expands a command template into argv, shell style.
// Quoted sections stay single arguments; expansion results are never re-split
// inside double quotes, so Windows paths with spaces survive.
func (v Vars) Fields(tmpl string) ([]string, error) {
	var missing []string
	fields, err := shell.Fields(tmpl, v.lookup(&missing))
	if err != nil {
		return nil, fmt.Errorf("invalid command template %q: %w", tmpl, err)
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("command template %q references undefined %s", tmpl, strings.Join(missing, ", "))
	}
	return fields, nil
}

// Expand expands a single path or value template without field splitting.
func (v Vars) Expand(tmpl string) (string, error) {
	var missing []string
	out, err := shell.Expand(tmpl, v.lookup(&missing))
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", tmpl, err)
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("template %q references undefined %s", tmpl, strings.Join(missing, ", "))
	}
	return out, nil
}

// With returns a copy of v extended with extra.
func (v Vars) With(extra map[string]string) Vars {
	out := maps.Clone(v)
	if out == nil {
		out = make(Vars, len(extra))
	}
	maps.Copy(out, extra)
	return out
}

// distVarName is the template variable holding a dependency's install prefix.
func distVarName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_DIST"
}
