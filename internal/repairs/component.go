package repairs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Component names a replaceable part or service performed during a repair.
type Component string

const (
	ComponentLCD               Component = "lcd"
	ComponentBattery           Component = "batt"
	ComponentHousing           Component = "scocca"
	ComponentLCDBattery        Component = "lcdBatt"
	ComponentHousingBatteryLCD Component = "scBattLcd"
	ComponentCamera            Component = "cam"
	ComponentFaceID            Component = "fId"
	ComponentHousingLCD        Component = "scocLcd"
	ComponentHousingBattery    Component = "scocBatt"
	ComponentWashing           Component = "washing"
)

// catalogue fixes the iteration order of every CostMap.
var catalogue = []Component{
	ComponentLCD,
	ComponentBattery,
	ComponentHousing,
	ComponentLCDBattery,
	ComponentHousingBatteryLCD,
	ComponentCamera,
	ComponentFaceID,
	ComponentHousingLCD,
	ComponentHousingBattery,
	ComponentWashing,
}

var catalogueIndex = func() map[Component]int {
	idx := make(map[Component]int, len(catalogue))
	for i, c := range catalogue {
		idx[c] = i
	}
	return idx
}()

// Components returns the known components in display order.
func Components() []Component {
	out := make([]Component, len(catalogue))
	copy(out, catalogue)
	return out
}

// Valid reports whether c is part of the catalogue.
func (c Component) Valid() bool {
	_, ok := catalogueIndex[c]
	return ok
}

// ParseComponent resolves a component name, ignoring surrounding whitespace.
func ParseComponent(raw string) (Component, error) {
	c := Component(strings.TrimSpace(raw))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownComponent, raw)
	}
	return c, nil
}

// CostMap is an ordered mapping from Component to a non-negative amount.
// The zero value is an empty map ready to use.
type CostMap struct {
	amounts map[Component]decimal.Decimal
}

// NewCostMap builds a CostMap, rejecting unknown components and negative amounts.
func NewCostMap(amounts map[Component]decimal.Decimal) (CostMap, error) {
	var m CostMap
	for c, amount := range amounts {
		if err := m.Set(c, amount); err != nil {
			return CostMap{}, err
		}
	}
	return m, nil
}

// Set assigns the amount for c.
func (m *CostMap) Set(c Component, amount decimal.Decimal) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownComponent, string(c))
	}
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s cost is negative", ErrInvalidCost, c)
	}
	if m.amounts == nil {
		m.amounts = make(map[Component]decimal.Decimal)
	}
	m.amounts[c] = amount
	return nil
}

// Get returns the amount for c and whether it is present.
func (m CostMap) Get(c Component) (decimal.Decimal, bool) {
	v, ok := m.amounts[c]
	return v, ok
}

// Len returns the number of entries.
func (m CostMap) Len() int {
	return len(m.amounts)
}

// Keys returns the present components in catalogue order.
func (m CostMap) Keys() []Component {
	keys := make([]Component, 0, len(m.amounts))
	for _, c := range catalogue {
		if _, ok := m.amounts[c]; ok {
			keys = append(keys, c)
		}
	}
	return keys
}

// Sum adds every amount in the map.
func (m CostMap) Sum() decimal.Decimal {
	total := decimal.Zero
	for _, c := range m.Keys() {
		total = total.Add(m.amounts[c])
	}
	return total
}

// SameKeys reports whether both maps cover exactly the same components.
func (m CostMap) SameKeys(other CostMap) bool {
	if m.Len() != other.Len() {
		return false
	}
	for c := range m.amounts {
		if _, ok := other.amounts[c]; !ok {
			return false
		}
	}
	return true
}

// Merge returns a new map with amounts of both maps added per component.
func (m CostMap) Merge(other CostMap) CostMap {
	out := CostMap{amounts: make(map[Component]decimal.Decimal, m.Len()+other.Len())}
	for c, v := range m.amounts {
		out.amounts[c] = v
	}
	for c, v := range other.amounts {
		out.amounts[c] = out.amounts[c].Add(v)
	}
	return out
}

// Pick returns a map restricted to the given components. Components missing
// from m are returned separately.
func (m CostMap) Pick(components []Component) (CostMap, []Component) {
	var out CostMap
	var missing []Component
	for _, c := range components {
		v, ok := m.amounts[c]
		if !ok {
			missing = append(missing, c)
			continue
		}
		_ = out.Set(c, v)
	}
	return out, missing
}

// MarshalJSON writes the map as an object in catalogue order.
func (m CostMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(string(c))
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteByte('"')
		buf.WriteString(m.amounts[c].String())
		buf.WriteByte('"')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON validates component names and amounts at the boundary.
func (m *CostMap) UnmarshalJSON(data []byte) error {
	var raw map[string]decimal.Decimal
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCost, err)
	}
	parsed := CostMap{}
	for name, amount := range raw {
		c, err := ParseComponent(name)
		if err != nil {
			return err
		}
		if err := parsed.Set(c, amount); err != nil {
			return err
		}
	}
	*m = parsed
	return nil
}
