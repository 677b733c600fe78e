package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Stat keys in canonical order.
const (
	StatHP         = "hp"
	StatEnergy     = "energy"
	StatRespect    = "respect"
	StatEvasion    = "evasion"
	StatArmor      = "armor"
	StatResistance = "resistance"
	StatBloodRes   = "bloodRes"
	StatPoisonRes  = "poisonRes"
)

// StatKeys lists every stat key in the order used for display and for eligibility reports.
var StatKeys = []string{
	StatHP, StatEnergy, StatRespect, StatEvasion,
	StatArmor, StatResistance, StatBloodRes, StatPoisonRes,
}

// MaxStatValue is the upper bound accepted for a single stat or requirement.
const MaxStatValue = 9999

// StatBlock is the 8-field numeric stat block. It doubles as an event's requirement thresholds.
type StatBlock struct {
	HP         int `json:"hp"`
	Energy     int `json:"energy"`
	Respect    int `json:"respect"`
	Evasion    int `json:"evasion"`
	Armor      int `json:"armor"`
	Resistance int `json:"resistance"`
	BloodRes   int `json:"bloodRes"`
	PoisonRes  int `json:"poisonRes"`
}

// Get returns the value for key, or 0 for an unknown key.
func (s StatBlock) Get(key string) int {
	switch key {
	case StatHP:
		return s.HP
	case StatEnergy:
		return s.Energy
	case StatRespect:
		return s.Respect
	case StatEvasion:
		return s.Evasion
	case StatArmor:
		return s.Armor
	case StatResistance:
		return s.Resistance
	case StatBloodRes:
		return s.BloodRes
	case StatPoisonRes:
		return s.PoisonRes
	}
	return 0
}

func (s *StatBlock) set(key string, v int) bool {
	switch key {
	case StatHP:
		s.HP = v
	case StatEnergy:
		s.Energy = v
	case StatRespect:
		s.Respect = v
	case StatEvasion:
		s.Evasion = v
	case StatArmor:
		s.Armor = v
	case StatResistance:
		s.Resistance = v
	case StatBloodRes:
		s.BloodRes = v
	case StatPoisonRes:
		s.PoisonRes = v
	default:
		return false
	}
	return true
}

// Validate checks every value is within 0..MaxStatValue.
func (s StatBlock) Validate(field string) error {
	for _, k := range StatKeys {
		if v := s.Get(k); v < 0 || v > MaxStatValue {
			return NewValidationError(field+"."+k, fmt.Sprintf("must be a number 0-%d", MaxStatValue))
		}
	}
	return nil
}

// ParseStatBlock builds a StatBlock from loosely typed input (form values or JSON numbers).
// Every key must be present and numeric; values are clamped to 0..MaxStatValue.
func ParseStatBlock(field string, raw map[string]any) (StatBlock, error) {
	var out StatBlock
	for _, k := range StatKeys {
		v, ok := raw[k]
		if !ok {
			return StatBlock{}, NewValidationError(field+"."+k, "is required")
		}
		n, ok := toInt(v)
		if !ok {
			return StatBlock{}, NewValidationError(field+"."+k, fmt.Sprintf("must be a number 0-%d", MaxStatValue))
		}
		out.set(k, clamp(n, 0, MaxStatValue))
	}
	return out, nil
}

// ParseRequirements builds requirement thresholds. Absent keys mean no requirement; unknown keys
// and non-numeric values are rejected.
func ParseRequirements(field string, raw map[string]any) (StatBlock, error) {
	var out StatBlock
	for k, v := range raw {
		n, ok := toInt(v)
		if !ok {
			return StatBlock{}, NewValidationError(field+"."+k, fmt.Sprintf("must be a number 0-%d", MaxStatValue))
		}
		if !out.set(k, clamp(n, 0, MaxStatValue)) {
			return StatBlock{}, NewValidationError(field+"."+k, "is not a known stat")
		}
	}
	return out, nil
}

// DecodeStats reads a stored stat object. Older rows may hold partial maps or string values;
// those are read leniently instead of failing.
func DecodeStats(raw []byte) (StatBlock, error) {
	if len(raw) == 0 {
		return StatBlock{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return StatBlock{}, fmt.Errorf("decode stats: %w", err)
	}
	return lenientStats(m), nil
}

// lenientStats decodes a legacy stat map: unknown keys are ignored, missing or malformed values become 0.
func lenientStats(raw map[string]any) StatBlock {
	var out StatBlock
	for k, v := range raw {
		if n, ok := toInt(v); ok {
			out.set(k, clamp(n, 0, MaxStatValue))
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
