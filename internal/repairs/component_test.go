package repairs

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCostMapKeepsCatalogueOrder(t *testing.T) {
	m, err := NewCostMap(map[Component]decimal.Decimal{
		ComponentWashing: d("5"),
		ComponentLCD:     d("40"),
		ComponentCamera:  d("12.5"),
	})
	require.NoError(t, err)
	require.Equal(t, []Component{ComponentLCD, ComponentCamera, ComponentWashing}, m.Keys())
	require.True(t, d("57.5").Equal(m.Sum()))

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	require.JSONEq(t, `{"lcd":"40","cam":"12.5","washing":"5"}`, string(raw))
}

func TestCostMapRejectsBadInput(t *testing.T) {
	var m CostMap
	require.ErrorIs(t, json.Unmarshal([]byte(`{"screen":"10"}`), &m), ErrUnknownComponent)
	require.ErrorIs(t, json.Unmarshal([]byte(`{"lcd":"-1"}`), &m), ErrInvalidCost)
	require.Error(t, json.Unmarshal([]byte(`{"lcd":"abc"}`), &m))

	require.NoError(t, json.Unmarshal([]byte(`{"lcd":40,"batt":"15.20"}`), &m))
	require.Equal(t, 2, m.Len())
	v, ok := m.Get(ComponentBattery)
	require.True(t, ok)
	require.True(t, d("15.2").Equal(v))
}

func TestCostMapSameKeysPickMerge(t *testing.T) {
	a, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("40"), ComponentBattery: d("10")})
	b, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("25"), ComponentBattery: d("5")})
	c, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("25")})

	require.True(t, a.SameKeys(b))
	require.False(t, a.SameKeys(c))

	picked, missing := a.Pick([]Component{ComponentLCD, ComponentCamera})
	require.Equal(t, []Component{ComponentLCD}, picked.Keys())
	require.Equal(t, []Component{ComponentCamera}, missing)

	merged := a.Merge(c)
	lcd, _ := merged.Get(ComponentLCD)
	require.True(t, d("65").Equal(lcd))
	require.True(t, d("75").Equal(merged.Sum()))
	// Inputs stay untouched.
	lcd, _ = a.Get(ComponentLCD)
	require.True(t, d("40").Equal(lcd))
}

func TestParseComponent(t *testing.T) {
	c, err := ParseComponent(" scocLcd ")
	require.NoError(t, err)
	require.Equal(t, ComponentHousingLCD, c)

	_, err = ParseComponent("ASSIST")
	require.ErrorIs(t, err, ErrUnknownComponent)
}

func TestRepairInfoValidate(t *testing.T) {
	materials, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("40")})
	labor, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("25")})
	info := RepairInfo{
		Materials:     materials,
		Labor:         labor,
		Technician:    Technician{Name: "Ana", Email: "ana@lab.test"},
		PaymentStatus: PaymentUnpaid,
	}
	require.NoError(t, info.Validate())
	require.True(t, d("25").Equal(info.TechnicianCost()))
	require.True(t, d("40").Equal(info.MaterialCost()))

	mismatch := info
	mismatch.Labor, _ = NewCostMap(map[Component]decimal.Decimal{ComponentBattery: d("25")})
	require.ErrorIs(t, mismatch.Validate(), ErrKeySetMismatch)

	noTech := info
	noTech.Technician = Technician{Name: "Ana"}
	require.ErrorIs(t, noTech.Validate(), ErrInvalidTechnician)

	paidNoDate := info
	paidNoDate.PaymentStatus = PaymentPaid
	require.ErrorIs(t, paidNoDate.Validate(), ErrInvalidCost)

	now := time.Now()
	paid := paidNoDate
	paid.PaidAt = &now
	require.NoError(t, paid.Validate())
}

func TestRepairInfoFingerprintTracksCosts(t *testing.T) {
	materials, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("40")})
	labor, _ := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("25")})
	info := RepairInfo{Materials: materials, Labor: labor, Technician: Technician{Name: "Ana", Email: "ANA@lab.test"}}

	same := info
	same.Technician.Email = "ana@lab.test"
	require.Equal(t, info.Fingerprint(), same.Fingerprint())

	changed := info
	changed.Labor, _ = NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("30")})
	require.NotEqual(t, info.Fingerprint(), changed.Fingerprint())
}
