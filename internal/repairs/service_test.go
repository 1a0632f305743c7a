package repairs

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/devicehub/devicehub/internal/shared"
)

type memoryRepo struct {
	tables   map[string]CostTable
	devices  map[int64]*DeviceRef
	attached map[int64]RepairInfo
	repairs  []Record
	costs    []Record
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		tables:   make(map[string]CostTable),
		devices:  make(map[int64]*DeviceRef),
		attached: make(map[int64]RepairInfo),
	}
}

func tableKey(kind CostKind, model string) string {
	return fmt.Sprintf("%s|%s", kind, model)
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) ListCostTables(ctx context.Context, kind CostKind) ([]CostTable, error) {
	var out []CostTable
	for _, t := range r.tables {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error) {
	t, ok := r.tables[tableKey(kind, model)]
	if !ok {
		return CostTable{}, ErrNotFound
	}
	return t, nil
}

func (r *memoryRepo) ListRepairs(ctx context.Context, filter ListFilter) ([]Record, error) {
	var out []Record
	for _, rec := range r.repairs {
		if filter.TechnicianEmail != "" && rec.Technician.Email != filter.TechnicianEmail {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (tx *memoryTx) GetCostTable(ctx context.Context, kind CostKind, model string) (CostTable, error) {
	return tx.repo.GetCostTable(ctx, kind, model)
}

func (tx *memoryTx) ReplaceCostTable(ctx context.Context, kind CostKind, model string, costs CostMap) error {
	tx.repo.tables[tableKey(kind, model)] = CostTable{Kind: kind, Model: model, Costs: costs}
	return nil
}

func (tx *memoryTx) DeleteCostTable(ctx context.Context, kind CostKind, model string) error {
	key := tableKey(kind, model)
	if _, ok := tx.repo.tables[key]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.tables, key)
	return nil
}

func (tx *memoryTx) LockDevice(ctx context.Context, id int64) (DeviceRef, error) {
	dev, ok := tx.repo.devices[id]
	if !ok {
		return DeviceRef{}, ErrNotFound
	}
	return *dev, nil
}

func (tx *memoryTx) InsertRepair(ctx context.Context, rec Record) (int64, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.repo.repairs = append(tx.repo.repairs, rec)
	return rec.ID, nil
}

func (tx *memoryTx) RecordCost(ctx context.Context, rec Record) error {
	tx.repo.costs = append(tx.repo.costs, rec)
	return nil
}

func (tx *memoryTx) AttachToDevice(ctx context.Context, deviceID int64, info RepairInfo) error {
	tx.repo.attached[deviceID] = info
	tx.repo.devices[deviceID].HasRepair = true
	return nil
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func seedTables(t *testing.T, svc *Service, model string) {
	t.Helper()
	ctx := context.Background()
	materials, err := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("40"), ComponentBattery: d("18")})
	require.NoError(t, err)
	labor, err := NewCostMap(map[Component]decimal.Decimal{ComponentLCD: d("25"), ComponentBattery: d("10"), ComponentCamera: d("8")})
	require.NoError(t, err)
	_, err = svc.UpsertCostTable(ctx, CostKindMaterial, UpsertCostTableRequest{Model: model, Costs: materials})
	require.NoError(t, err)
	_, err = svc.UpsertCostTable(ctx, CostKindTechnician, UpsertCostTableRequest{Model: " " + model + " ", Costs: labor})
	require.NoError(t, err)
}

func TestConfirmRepairBuildsMatchingCostMaps(t *testing.T) {
	repo := newMemoryRepo()
	repo.devices[7] = &DeviceRef{ID: 7, IMEI: "356938035643809", Model: "iPhone 12"}
	audit := &recordingAudit{}
	svc := NewService(repo, audit, nil)
	seedTables(t, svc, "iPhone 12")

	rec, err := svc.Confirm(context.Background(), ConfirmRepairRequest{
		DeviceID:   7,
		Components: []Component{ComponentLCD, ComponentBattery},
		Technician: Technician{Name: " Ana ", Email: "ANA@lab.test"},
	})
	require.NoError(t, err)
	require.EqualValues(t, 1, rec.ID)
	require.Equal(t, PaymentUnpaid, rec.PaymentStatus)
	require.Equal(t, "ana@lab.test", rec.Technician.Email)
	require.Equal(t, "Ana", rec.Technician.Name)
	require.True(t, rec.Materials.SameKeys(rec.Labor))
	require.True(t, d("58").Equal(rec.MaterialCost()))
	require.True(t, d("35").Equal(rec.TechnicianCost()))

	attached := repo.attached[7]
	require.Equal(t, rec.ID, attached.ID)
	require.Equal(t, "repair.confirm", audit.logs[len(audit.logs)-1].Action)
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls++
	return nil
}

func TestConfirmRepairRecordsCostHistory(t *testing.T) {
	repo := newMemoryRepo()
	repo.devices[7] = &DeviceRef{ID: 7, Model: "iPhone 12"}
	repo.devices[8] = &DeviceRef{ID: 8, Model: "iPhone 12"}
	summaries := &countingInvalidator{}
	svc := NewService(repo, nil, summaries)
	seedTables(t, svc, "iPhone 12")
	ctx := context.Background()

	rec, err := svc.Confirm(ctx, ConfirmRepairRequest{
		DeviceID:   7,
		Components: []Component{ComponentLCD},
		Technician: Technician{Name: "Ana", Email: "ana@lab.test"},
	})
	require.NoError(t, err)
	require.Len(t, repo.costs, 1)
	require.Equal(t, rec.ID, repo.costs[0].ID)
	require.True(t, d("25").Equal(repo.costs[0].TechnicianCost()))
	require.Equal(t, 1, summaries.calls)

	_, err = svc.Confirm(ctx, ConfirmRepairRequest{
		DeviceID:   7,
		Components: []Component{ComponentLCD},
		Technician: Technician{Name: "Ana", Email: "ana@lab.test"},
	})
	require.ErrorIs(t, err, ErrAlreadyRepaired)
	require.Len(t, repo.costs, 1)
	require.Equal(t, 1, summaries.calls)
}

func TestConfirmRepairRejectsMissingCosts(t *testing.T) {
	repo := newMemoryRepo()
	repo.devices[7] = &DeviceRef{ID: 7, Model: "iPhone 12"}
	svc := NewService(repo, nil, nil)
	seedTables(t, svc, "iPhone 12")

	_, err := svc.Confirm(context.Background(), ConfirmRepairRequest{
		DeviceID:   7,
		Components: []Component{ComponentCamera},
		Technician: Technician{Name: "Ana", Email: "ana@lab.test"},
	})
	require.ErrorIs(t, err, ErrMissingCost)
	require.Empty(t, repo.repairs)

	repo.devices[8] = &DeviceRef{ID: 8, Model: "Pixel 7"}
	_, err = svc.Confirm(context.Background(), ConfirmRepairRequest{
		DeviceID:   8,
		Components: []Component{ComponentLCD},
		Technician: Technician{Name: "Ana", Email: "ana@lab.test"},
	})
	require.ErrorIs(t, err, ErrMissingCost)
}

func TestConfirmRepairGuards(t *testing.T) {
	repo := newMemoryRepo()
	repo.devices[7] = &DeviceRef{ID: 7, Model: "iPhone 12", HasRepair: true}
	svc := NewService(repo, nil, nil)
	seedTables(t, svc, "iPhone 12")
	ctx := context.Background()
	tech := Technician{Name: "Ana", Email: "ana@lab.test"}

	_, err := svc.Confirm(ctx, ConfirmRepairRequest{DeviceID: 7, Components: []Component{ComponentLCD}, Technician: tech})
	require.ErrorIs(t, err, ErrAlreadyRepaired)

	_, err = svc.Confirm(ctx, ConfirmRepairRequest{DeviceID: 99, Components: []Component{ComponentLCD}, Technician: tech})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = svc.Confirm(ctx, ConfirmRepairRequest{DeviceID: 7, Components: []Component{"screen"}, Technician: tech})
	require.ErrorIs(t, err, ErrUnknownComponent)

	_, err = svc.Confirm(ctx, ConfirmRepairRequest{DeviceID: 7, Components: []Component{ComponentLCD}, Technician: Technician{Email: "x@y.z"}})
	require.ErrorIs(t, err, ErrInvalidTechnician)

	_, err = svc.Confirm(ctx, ConfirmRepairRequest{DeviceID: 7})
	require.Error(t, err)
}

func TestUpsertCostTableRequiresCosts(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	_, err := svc.UpsertCostTable(context.Background(), CostKindMaterial, UpsertCostTableRequest{Model: "iPhone 12"})
	require.ErrorIs(t, err, ErrInvalidCost)

	require.ErrorIs(t, svc.DeleteCostTable(context.Background(), CostKindMaterial, "nope"), ErrNotFound)
}

func TestLookupReturnsBothTables(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil)
	seedTables(t, svc, "iPhone 12")

	material, technician, err := svc.Lookup(context.Background(), "iPhone 12")
	require.NoError(t, err)
	require.Equal(t, 2, material.Costs.Len())
	require.Equal(t, 3, technician.Costs.Len())

	_, _, err = svc.Lookup(context.Background(), "Nokia 3310")
	require.ErrorIs(t, err, ErrNotFound)
}
