package engine

import (
	"sort"
	"sync"

	"github.com/porticolabs/portico/portico"
)

// FixedRule is an algorithm extension invoked with '<~'. It receives the
// materialized input relation and the resolved scalar arguments and
// produces a new relation. Rules are compiled in behind build tags and
// register themselves at init time.
type FixedRule func(input *Relation, args []portico.Value) (*Relation, error)

var (
	rulesMu    sync.RWMutex
	fixedRules = make(map[string]FixedRule)
	extensions []string
)

// RegisterFixedRule installs an algorithm under a name.
func RegisterFixedRule(name string, fn FixedRule) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	fixedRules[name] = fn
}

// LookupFixedRule finds a registered algorithm.
func LookupFixedRule(name string) (FixedRule, bool) {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	fn, ok := fixedRules[name]
	return fn, ok
}

// FixedRuleNames lists the algorithms linked into this build.
func FixedRuleNames() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	names := make([]string, 0, len(fixedRules))
	for n := range fixedRules {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// registerExtension records a capability flag for the probe.
func registerExtension(flag string) {
	rulesMu.Lock()
	defer rulesMu.Unlock()
	extensions = append(extensions, flag)
	sort.Strings(extensions)
}

// Extensions reports the feature flags compiled into this build.
func Extensions() []string {
	rulesMu.RLock()
	defer rulesMu.RUnlock()
	return append([]string(nil), extensions...)
}
