package dispense

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
	"github.com/opdclinic/clinic-api/internal/service/event"
	"github.com/opdclinic/clinic-api/internal/service/stock"
	apperrors "github.com/opdclinic/clinic-api/pkg/errors"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("dispense_test", "svc")

var testLogger = logger.NewLogger(&logger.Config{
	Level:  logger.ErrorLevel,
	Output: io.Discard,
})

type fakeDispenseRepo struct {
	mu        sync.Mutex
	dispenses map[uuid.UUID]*model.Dispense
}

func newFakeDispenseRepo() *fakeDispenseRepo {
	return &fakeDispenseRepo{dispenses: make(map[uuid.UUID]*model.Dispense)}
}

func (r *fakeDispenseRepo) store(d *model.Dispense) {
	cp := *d
	cp.Items = append([]model.DispenseItem(nil), d.Items...)
	r.dispenses[d.ID] = &cp
}

func (r *fakeDispenseRepo) Create(ctx context.Context, d *model.Dispense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store(d)
	return nil
}

func (r *fakeDispenseRepo) Get(ctx context.Context, id uuid.UUID) (*model.Dispense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.dispenses[id]
	if !ok {
		return nil, repository.ErrNoRows
	}
	cp := *d
	cp.Items = append([]model.DispenseItem(nil), d.Items...)
	return &cp, nil
}

func (r *fakeDispenseRepo) Update(ctx context.Context, d *model.Dispense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.dispenses[d.ID]; !ok {
		return repository.ErrNoRows
	}
	r.store(d)
	return nil
}

func (r *fakeDispenseRepo) UpdatePayment(ctx context.Context, d *model.Dispense) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.dispenses[d.ID]
	if !ok {
		return repository.ErrNoRows
	}
	existing.PaidAmount = d.PaidAmount
	existing.PaymentStatus = d.PaymentStatus
	existing.BillNumber = d.BillNumber
	return nil
}

func (r *fakeDispenseRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.Dispense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Dispense
	for _, d := range r.dispenses {
		if d.PatientID == patientID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (r *fakePatientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, repository.ErrNoRows
	}
	return p, nil
}

type fakeAppointmentRepo struct {
	appointments map[uuid.UUID]*model.Appointment
}

func (r *fakeAppointmentRepo) Create(ctx context.Context, apt *model.Appointment) error { return nil }
func (r *fakeAppointmentRepo) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, ok := r.appointments[id]
	if !ok {
		return nil, repository.ErrNoRows
	}
	return apt, nil
}
func (r *fakeAppointmentRepo) Update(ctx context.Context, apt *model.Appointment) error { return nil }
func (r *fakeAppointmentRepo) Delete(ctx context.Context, id uuid.UUID) error           { return nil }
func (r *fakeAppointmentRepo) ListByDay(ctx context.Context, day time.Time) ([]*model.Appointment, error) {
	return nil, nil
}
func (r *fakeAppointmentRepo) CountForDay(ctx context.Context, day time.Time, excludeID *uuid.UUID) (int, error) {
	return 0, nil
}
func (r *fakeAppointmentRepo) HasSlotConflict(ctx context.Context, doctorID uuid.UUID, date time.Time, slot string, excludeID *uuid.UUID) (bool, error) {
	return false, nil
}
func (r *fakeAppointmentRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	return nil
}

type fakeMedicineRepo struct {
	medicines map[uuid.UUID]*model.Medicine
}

func (r *fakeMedicineRepo) Get(ctx context.Context, id uuid.UUID) (*model.Medicine, error) {
	m, ok := r.medicines[id]
	if !ok {
		return nil, repository.ErrNoRows
	}
	return m, nil
}
func (r *fakeMedicineRepo) List(ctx context.Context) ([]*model.Medicine, error) { return nil, nil }
func (r *fakeMedicineRepo) FindExact(ctx context.Context, name, strength, form string) (*model.Medicine, error) {
	for _, m := range r.medicines {
		if strings.EqualFold(m.Name, name) && m.Strength == strength && m.Form == form {
			return m, nil
		}
	}
	return nil, repository.ErrNoRows
}
func (r *fakeMedicineRepo) FindByName(ctx context.Context, name string) (*model.Medicine, error) {
	for _, m := range r.medicines {
		if strings.EqualFold(m.Name, name) {
			return m, nil
		}
	}
	return nil, repository.ErrNoRows
}
func (r *fakeMedicineRepo) AdjustStock(ctx context.Context, id uuid.UUID, delta int) error {
	m, ok := r.medicines[id]
	if !ok {
		return repository.ErrNoRows
	}
	m.Stock += delta
	if m.Stock < 0 {
		m.Stock = 0
	}
	return nil
}
func (r *fakeMedicineRepo) Upsert(ctx context.Context, medicine *model.Medicine) error {
	medicine.ID = uuid.New()
	r.medicines[medicine.ID] = medicine
	return nil
}

type fakeOutboxRepo struct {
	mu     sync.Mutex
	events []*model.OutboxEvent
}

func (r *fakeOutboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}
func (r *fakeOutboxRepo) GetPendingEventsWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	return nil, nil
}
func (r *fakeOutboxRepo) MarkProcessed(ctx context.Context, id uuid.UUID) error { return nil }
func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	return nil
}

// fakeTransactor runs fn directly; the fakes have no transactional state.
type fakeTransactor struct{}

func (fakeTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testEnv struct {
	svc       *Service
	repo      *fakeDispenseRepo
	outbox    *fakeOutboxRepo
	medicines *fakeMedicineRepo
	patientID uuid.UUID
	now       time.Time
}

func newTestEnv(t *testing.T, medicines ...*model.Medicine) *testEnv {
	t.Helper()

	medicineRepo := &fakeMedicineRepo{medicines: make(map[uuid.UUID]*model.Medicine)}
	for _, m := range medicines {
		medicineRepo.medicines[m.ID] = m
	}

	patient := &model.Patient{Name: "Test Patient"}
	patient.ID = uuid.New()
	patientRepo := &fakePatientRepo{patients: map[uuid.UUID]*model.Patient{patient.ID: patient}}

	repo := newFakeDispenseRepo()
	outbox := &fakeOutboxRepo{}
	ledger := stock.NewLedger(medicineRepo, testLogger, testMetrics)

	svc := NewService(
		repo,
		&fakeAppointmentRepo{appointments: make(map[uuid.UUID]*model.Appointment)},
		patientRepo,
		ledger,
		event.NewService(outbox),
		fakeTransactor{},
		testLogger,
		testMetrics,
	)

	env := &testEnv{
		svc:       svc,
		repo:      repo,
		outbox:    outbox,
		medicines: medicineRepo,
		patientID: patient.ID,
		now:       time.Date(2024, 5, 10, 12, 30, 45, 0, time.UTC),
	}
	svc.now = func() time.Time { return env.now }
	return env
}

func newMedicine(name, strength, form string, stock int) *model.Medicine {
	m := &model.Medicine{Name: name, Strength: strength, Form: form, Stock: stock}
	m.ID = uuid.New()
	return m
}

func createRequest(patientID uuid.UUID, items ...model.DispenseItemRequest) *model.CreateDispenseRequest {
	return &model.CreateDispenseRequest{
		PatientID: patientID,
		Items:     items,
	}
}

func itemRequest(name string, qty int, price float64) model.DispenseItemRequest {
	return model.DispenseItemRequest{
		Name:      name,
		Strength:  "500mg",
		Form:      "tablet",
		Quantity:  qty,
		UnitPrice: price,
	}
}

func TestCreateOpensPendingBillAndConsumesStock(t *testing.T) {
	paracetamol := newMedicine("Paracetamol", "500mg", "tablet", 10)
	env := newTestEnv(t, paracetamol)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("Paracetamol", 4, 2.5)))
	require.NoError(t, err)

	assert.Equal(t, model.PaymentStatusPending, d.PaymentStatus)
	assert.Empty(t, d.BillNumber)
	assert.Zero(t, d.PaidAmount)
	assert.Equal(t, 10.0, d.Subtotal)
	assert.Equal(t, 10.0, d.Total)
	assert.Equal(t, 6, paracetamol.Stock)

	// dispense.created lands in the outbox alongside the bill.
	require.Len(t, env.outbox.events, 1)
	assert.Equal(t, model.EventDispenseCreated, env.outbox.events[0].EventType)
}

func TestCreateUnknownPatientRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Create(context.Background(), createRequest(uuid.New(), itemRequest("Paracetamol", 1, 2)))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestCreateSnapshotsAppointmentToken(t *testing.T) {
	env := newTestEnv(t)

	apt := &model.Appointment{
		AppointmentDay: time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		DailyToken:     7,
	}
	apt.ID = uuid.New()
	env.svc.appointments.(*fakeAppointmentRepo).appointments[apt.ID] = apt

	req := createRequest(env.patientID, itemRequest("Paracetamol", 1, 2))
	req.AppointmentID = &apt.ID

	d, err := env.svc.Create(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, d.DailyToken)
	assert.Equal(t, 7, *d.DailyToken)
	require.NotNil(t, d.AppointmentDay)
	assert.True(t, d.AppointmentDay.Equal(apt.AppointmentDay))
}

func TestRecordPaymentLifecycle(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("Paracetamol", 10, 10)))
	require.NoError(t, err)
	require.Equal(t, 100.0, d.Total)

	// Partial payment moves out of pending and assigns the bill number.
	d, err = env.svc.RecordPayment(context.Background(), d.ID, 40)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPartial, d.PaymentStatus)
	assert.Equal(t, 40.0, d.PaidAmount)
	require.NotEmpty(t, d.BillNumber)
	firstBill := d.BillNumber

	// Further payments accumulate; the bill number never changes.
	d, err = env.svc.RecordPayment(context.Background(), d.ID, 60)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusPaid, d.PaymentStatus)
	assert.Equal(t, 100.0, d.PaidAmount)
	assert.Equal(t, firstBill, d.BillNumber)
}

func TestRecordPaymentRejectsNonPositiveAmount(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("Paracetamol", 1, 50)))
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), d.ID, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))

	_, err = env.svc.RecordPayment(context.Background(), d.ID, -10)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrBadRequest))
}

func TestUpdateReconcilesStock(t *testing.T) {
	drugA := newMedicine("DrugA", "500mg", "tablet", 12)
	drugB := newMedicine("DrugB", "500mg", "tablet", 10)
	env := newTestEnv(t, drugA, drugB)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("DrugA", 3, 5)))
	require.NoError(t, err)
	assert.Equal(t, 9, drugA.Stock)

	updated, err := env.svc.Update(context.Background(), d.ID, &model.UpdateDispenseRequest{
		Items: []model.DispenseItemRequest{
			itemRequest("DrugA", 1, 5),
			itemRequest("DrugB", 2, 4),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 11, drugA.Stock)
	assert.Equal(t, 8, drugB.Stock)
	assert.Equal(t, 13.0, updated.Total)
}

func TestUpdateRederivesStatusAgainstNewTotal(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("DrugA", 2, 50)))
	require.NoError(t, err)

	d, err = env.svc.RecordPayment(context.Background(), d.ID, 100)
	require.NoError(t, err)
	require.Equal(t, model.PaymentStatusPaid, d.PaymentStatus)

	// Growing the bill after full payment drops it back to partial.
	updated, err := env.svc.Update(context.Background(), d.ID, &model.UpdateDispenseRequest{
		Items: []model.DispenseItemRequest{itemRequest("DrugA", 3, 50)},
	})
	require.NoError(t, err)
	assert.Equal(t, 150.0, updated.Total)
	assert.Equal(t, model.PaymentStatusPartial, updated.PaymentStatus)
}

func TestTotalsFloorAtZero(t *testing.T) {
	env := newTestEnv(t)

	req := createRequest(env.patientID, itemRequest("DrugA", 1, 10))
	req.Discount = 25

	d, err := env.svc.Create(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 10.0, d.Subtotal)
	assert.Equal(t, 0.0, d.Total)
	// A zero-payable bill still starts pending until money is recorded.
	assert.Equal(t, model.PaymentStatusPending, d.PaymentStatus)
}

func TestCancelRestoresStockOnce(t *testing.T) {
	drugA := newMedicine("DrugA", "500mg", "tablet", 10)
	env := newTestEnv(t, drugA)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("DrugA", 4, 5)))
	require.NoError(t, err)
	require.Equal(t, 6, drugA.Stock)

	cancelled, err := env.svc.Cancel(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatusCancelled, cancelled.PaymentStatus)
	assert.Equal(t, 10, drugA.Stock)

	// A second cancel must not restore stock again.
	_, err = env.svc.Cancel(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidStateTransition))
	assert.Equal(t, 10, drugA.Stock)
}

func TestCancelledBillIsFrozen(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("DrugA", 1, 30)))
	require.NoError(t, err)

	_, err = env.svc.Cancel(context.Background(), d.ID)
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), d.ID, 30)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidStateTransition))

	_, err = env.svc.Update(context.Background(), d.ID, &model.UpdateDispenseRequest{
		Items: []model.DispenseItemRequest{itemRequest("DrugA", 2, 30)},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrInvalidStateTransition))
}

func TestCancelPreservesPaidAmount(t *testing.T) {
	env := newTestEnv(t)

	d, err := env.svc.Create(context.Background(), createRequest(env.patientID, itemRequest("DrugA", 2, 25)))
	require.NoError(t, err)

	_, err = env.svc.RecordPayment(context.Background(), d.ID, 20)
	require.NoError(t, err)

	cancelled, err := env.svc.Cancel(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cancelled.PaidAmount)
}
