package runtime

import (
	"strings"
	"sync"
)

// Standardized state labels produced by the classifier.
const (
	StateIdle           = "idle"
	StateCooling        = "cooling"
	StateCoolingWithFan = "cooling_with_fan"
	StateHeating        = "heating"
	StateHeatingWithFan = "heating_with_fan"
	StateAuxHeat        = "aux_heat"
	StateAuxHeatWithFan = "aux_heat_with_fan"
	StateFanOnly        = "fan_only"
)

// Classifier maps raw equipment-status token strings into the state
// taxonomy. Classification is a pure function of the input string, so
// results are memoized by exact input: the same strings repeat across
// devices and polls.
//
// Thread-safe.
type Classifier struct {
	// treatBareFanAsActive controls whether a lone fan token counts as
	// an active fan-only state or as idle. A fan often keeps circulating
	// air between heating/cooling phases; whether that is "running" is a
	// product decision, so it is configurable.
	treatBareFanAsActive bool

	mu   sync.RWMutex
	memo map[string]ClassifiedStatus
}

// Token sets, lowercased. Aux/emergency heat outranks primary heating,
// cooling outranks heating, any compressor/heat token outranks fan.
var (
	auxHeatTokens = map[string]struct{}{
		"auxheat1":      {},
		"auxheat2":      {},
		"auxheat3":      {},
		"emergencyheat": {},
		"auxhotwater":   {},
	}
	coolingTokens = map[string]struct{}{
		"compcool1": {},
		"compcool2": {},
	}
	heatingTokens = map[string]struct{}{
		"compheat1": {},
		"compheat2": {},
		"heatpump":  {},
		"heatpump2": {},
		"heatpump3": {},
	}
	fanTokens = map[string]struct{}{
		"fan":        {},
		"ventilator": {},
	}
)

// NewClassifier creates a classifier.
func NewClassifier(treatBareFanAsActive bool) *Classifier {
	return &Classifier{
		treatBareFanAsActive: treatBareFanAsActive,
		memo:                 make(map[string]ClassifiedStatus),
	}
}

// Classify maps a raw equipment-status string to a ClassifiedStatus.
// Input is a comma-separated token list, case-insensitive, possibly
// empty. Malformed input degrades to idle; Classify never fails.
func (c *Classifier) Classify(raw string) ClassifiedStatus {
	c.mu.RLock()
	cached, ok := c.memo[raw]
	c.mu.RUnlock()
	if ok {
		return cached
	}

	result := c.classify(raw)

	c.mu.Lock()
	c.memo[raw] = result
	c.mu.Unlock()

	return result
}

func (c *Classifier) classify(raw string) ClassifiedStatus {
	var hasAux, hasCool, hasHeat, hasFan bool

	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		switch {
		case contains(auxHeatTokens, token):
			hasAux = true
		case contains(coolingTokens, token):
			hasCool = true
		case contains(heatingTokens, token):
			hasHeat = true
		case contains(fanTokens, token):
			hasFan = true
		}
		// Unknown tokens are ignored rather than failing the sample.
	}

	switch {
	case hasAux:
		return ClassifiedStatus{Active: true, Mode: ModeAuxHeat, State: withFan(StateAuxHeat, StateAuxHeatWithFan, hasFan)}
	case hasCool:
		return ClassifiedStatus{Active: true, Mode: ModeCooling, State: withFan(StateCooling, StateCoolingWithFan, hasFan)}
	case hasHeat:
		return ClassifiedStatus{Active: true, Mode: ModeHeating, State: withFan(StateHeating, StateHeatingWithFan, hasFan)}
	case hasFan:
		if c.treatBareFanAsActive {
			return ClassifiedStatus{Active: true, Mode: ModeFanOnly, State: StateFanOnly}
		}
		return ClassifiedStatus{Active: false, State: StateIdle}
	default:
		return ClassifiedStatus{Active: false, State: StateIdle}
	}
}

func contains(set map[string]struct{}, token string) bool {
	_, ok := set[token]
	return ok
}

func withFan(plain, fanned string, hasFan bool) string {
	if hasFan {
		return fanned
	}
	return plain
}
