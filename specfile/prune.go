package specfile

import "strings"

// supportedOn implements the `supported-on` token semantics from spec §4.2:
// "`!m` excludes `m`; absence of any positive token means "all"; `all` means
// all."
func supportedOn(raw, machine string) bool {
	if strings.TrimSpace(raw) == "" {
		return true
	}

	tokens := strings.Fields(raw)
	var positives []string
	for _, t := range tokens {
		if t == "all" {
			return true
		}
		if strings.HasPrefix(t, "!") {
			if strings.TrimPrefix(t, "!") == machine {
				return false
			}
			continue
		}
		positives = append(positives, t)
	}

	if len(positives) == 0 {
		return true
	}
	for _, p := range positives {
		if p == machine {
			return true
		}
	}
	return false
}

// pruneOptions carries the evaluation context for a prune pass: the build
// terms an `if` expression is checked against, plus the target machine used
// by `supported-on`, and the CLI-level `--enable`/`--disable` overrides
// (spec §6 `pack` CLI surface) that force a named binary package in or out
// regardless of its own `if`.
type pruneOptions struct {
	TrueTerms map[string]bool
	Machine   string
	Enable    map[string]bool
	Disable   map[string]bool
}

func (o pruneOptions) packageEnabled(name string, ifExpr string) (bool, error) {
	if o.Disable[name] {
		return false, nil
	}
	if o.Enable[name] {
		return true, nil
	}
	return Eval(ifExpr, o.TrueTerms)
}

func pruneDepGroups(raw []rawDepGroup, o pruneOptions) (depGroups, error) {
	var groups depGroups
	for _, g := range raw {
		var alts []depAlt
		for _, pkg := range g.Alternatives {
			ok, err := Eval(pkg.If, o.TrueTerms)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue // if="false": dropped during from_xml (spec §4.2(c))
			}
			if !supportedOn(pkg.SupportedOn, o.Machine) {
				continue // ignore="true" then dropped (spec §4.2(c))
			}
			alts = append(alts, depAlt{Name: pkg.Name, Op: pkg.Op, Version: pkg.Version})
		}
		if len(alts) > 0 {
			groups = append(groups, alts)
		}
	}
	return groups, nil
}

// depAlt and depGroups are the intermediate (untyped-version) shape of a
// dependency group before version.DependencyList construction (done by the
// caller once a concrete version.Version is available per alternative).
type depAlt struct {
	Name    string
	Op      string
	Version string
}

type depGroups []([]depAlt)
