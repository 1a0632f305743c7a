package profit

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/devicehub/devicehub/internal/repairs"
)

// Fingerprint identifies the calculator inputs. Two inputs with equal
// fingerprints produce equal breakdowns.
func (in Input) Fingerprint() string {
	var b strings.Builder
	b.WriteString(in.ArrivalPrice.String())
	b.WriteByte('|')
	if in.SoldPrice.Valid {
		b.WriteString(in.SoldPrice.Decimal.String())
	}
	b.WriteByte('|')
	b.WriteString(in.ShippingCost.String())
	b.WriteByte('|')
	b.WriteString(in.CommissionRate.String())
	if in.Repair != nil {
		writeCosts(&b, "m", in.Repair.Materials)
		writeCosts(&b, "l", in.Repair.Labor)
	}
	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

func writeCosts(b *strings.Builder, tag string, costs repairs.CostMap) {
	b.WriteByte('|')
	b.WriteString(tag)
	for _, c := range costs.Keys() {
		v, _ := costs.Get(c)
		b.WriteByte(';')
		b.WriteString(string(c))
		b.WriteByte('=')
		b.WriteString(v.String())
	}
}
