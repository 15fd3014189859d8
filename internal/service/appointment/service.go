package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/opdclinic/clinic-api/internal/model"
	"github.com/opdclinic/clinic-api/internal/repository"
	"github.com/opdclinic/clinic-api/internal/service/payment"
	apperrors "github.com/opdclinic/clinic-api/pkg/errors"
	"github.com/opdclinic/clinic-api/pkg/logger"
	"github.com/opdclinic/clinic-api/pkg/metrics"
)

// DefaultTokenRetries bounds the compare-and-retry loop of the daily
// token allocator. Overridable through Config.
const DefaultTokenRetries = 3

const (
	doctorFeeCacheTTL     = 5 * time.Minute
	doctorFeeCacheCleanup = 10 * time.Minute
)

type Config struct {
	// TokenRetries is the number of allocation attempts before the
	// booking is surfaced as failed under contention.
	TokenRetries int
}

type Service struct {
	repo       repository.AppointmentRepository
	doctorRepo repository.DoctorRepository
	feeCache   *cache.Cache
	cfg        Config
	logger     *logger.Logger
	metrics    *metrics.Metrics
}

func NewService(repo repository.AppointmentRepository, doctorRepo repository.DoctorRepository, cfg Config, l *logger.Logger, m *metrics.Metrics) *Service {
	if cfg.TokenRetries <= 0 {
		cfg.TokenRetries = DefaultTokenRetries
	}
	return &Service{
		repo:       repo,
		doctorRepo: doctorRepo,
		feeCache:   cache.New(doctorFeeCacheTTL, doctorFeeCacheCleanup),
		cfg:        cfg,
		logger:     l,
		metrics:    m,
	}
}

// Book creates an appointment: conflict check first, then token
// allocation, then the guarded insert. The insert itself is the
// allocation attempt; a uniqueness violation on (day, token) means a
// concurrent booking won the race and the token is recomputed.
func (s *Service) Book(ctx context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	conflict, err := s.repo.HasSlotConflict(ctx, req.DoctorID, req.AppointmentDate, req.AppointmentTime, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check slot conflict: %w", err)
	}
	if conflict {
		s.metrics.SlotConflicts.Inc()
		return nil, apperrors.SlotConflict(req.DoctorID.String(), req.AppointmentDate.Format("2006-01-02"), req.AppointmentTime)
	}

	amount := 0.0
	if req.Amount != nil {
		amount = *req.Amount
	} else {
		fee, err := s.doctorFee(ctx, req.DoctorID)
		if err != nil {
			return nil, err
		}
		amount = fee
	}

	apt := &model.Appointment{
		PatientID:       req.PatientID,
		DoctorID:        req.DoctorID,
		AppointmentDate: req.AppointmentDate,
		AppointmentDay:  model.TruncateToDay(req.AppointmentDate),
		AppointmentTime: req.AppointmentTime,
		Status:          model.AppointmentStatusScheduled,
		Amount:          amount,
		Discount:        req.Discount,
		PaymentOnline:   req.PaymentOnline,
		PaymentOffline:  req.PaymentOffline,
		Notes:           req.Notes,
	}
	apt.ID = uuid.New()
	apt.PaymentStatus = payment.Derive(apt.Paid(), apt.Amount, apt.Discount)

	if err := s.persistWithToken(ctx, apt, nil, func() error {
		return s.repo.Create(ctx, apt)
	}); err != nil {
		return nil, err
	}

	return apt, nil
}

// persistWithToken runs the count-then-write allocation loop. The store
// uniqueness constraint on (appointment_day, daily_token) is the
// authoritative guard; the count is only a proposal.
func (s *Service) persistWithToken(ctx context.Context, apt *model.Appointment, excludeID *uuid.UUID, write func() error) error {
	var lastErr error

	for attempt := 0; attempt < s.cfg.TokenRetries; attempt++ {
		if attempt > 0 {
			s.metrics.TokenRetries.Inc()
		}

		count, err := s.repo.CountForDay(ctx, apt.AppointmentDay, excludeID)
		if err != nil {
			return fmt.Errorf("failed to count appointments: %w", err)
		}
		apt.DailyToken = count + 1

		err = write()
		if err == nil {
			s.metrics.TokenAllocations.Inc()
			return nil
		}
		if !errors.Is(err, repository.ErrUniqueViolation) {
			return err
		}

		lastErr = err
		s.logger.Warn("daily token contention, recomputing",
			"day", apt.AppointmentDay.Format("2006-01-02"),
			"token", apt.DailyToken,
			"attempt", attempt+1,
		)
	}

	s.metrics.TokenAllocationFails.Inc()
	return apperrors.TokenAllocationFailed(apt.AppointmentDay.Format("2006-01-02"), s.cfg.TokenRetries, lastErr)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return apt, nil
}

func (s *Service) ListByDay(ctx context.Context, day time.Time) ([]*model.Appointment, error) {
	appointments, err := s.repo.ListByDay(ctx, model.TruncateToDay(day))
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

// Update applies a partial change set. Conflict detection runs against
// the effective post-update doctor/date/time whenever any of them is in
// the change set; a date change truncates to a new day and forces
// reallocation of the daily token.
func (s *Service) Update(ctx context.Context, id uuid.UUID, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	apt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	doctorChanged := req.DoctorID != nil && *req.DoctorID != apt.DoctorID
	if doctorChanged {
		apt.DoctorID = *req.DoctorID
		// Doctor reassignment without an explicit amount repriced at the
		// new doctor's fee.
		if req.Amount == nil {
			fee, err := s.doctorFee(ctx, apt.DoctorID)
			if err != nil {
				return nil, err
			}
			apt.Amount = fee
		}
	}

	dayChanged := false
	if req.AppointmentDate != nil && !req.AppointmentDate.Equal(apt.AppointmentDate) {
		apt.AppointmentDate = *req.AppointmentDate
		newDay := model.TruncateToDay(apt.AppointmentDate)
		dayChanged = !newDay.Equal(apt.AppointmentDay)
		apt.AppointmentDay = newDay
	}

	timeChanged := req.AppointmentTime != nil && *req.AppointmentTime != apt.AppointmentTime
	if timeChanged {
		apt.AppointmentTime = *req.AppointmentTime
	}

	if req.Amount != nil {
		apt.Amount = *req.Amount
	}
	if req.Discount != nil {
		apt.Discount = *req.Discount
	}
	if req.PaymentOnline != nil {
		apt.PaymentOnline = *req.PaymentOnline
	}
	if req.PaymentOffline != nil {
		apt.PaymentOffline = *req.PaymentOffline
	}
	if req.Notes != nil {
		apt.Notes = *req.Notes
	}

	if doctorChanged || req.AppointmentDate != nil || timeChanged {
		conflict, err := s.repo.HasSlotConflict(ctx, apt.DoctorID, apt.AppointmentDate, apt.AppointmentTime, &apt.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check slot conflict: %w", err)
		}
		if conflict {
			s.metrics.SlotConflicts.Inc()
			return nil, apperrors.SlotConflict(apt.DoctorID.String(), apt.AppointmentDate.Format("2006-01-02"), apt.AppointmentTime)
		}
	}

	apt.PaymentStatus = payment.Derive(apt.Paid(), apt.Amount, apt.Discount)

	if dayChanged {
		excludeID := apt.ID
		if err := s.persistWithToken(ctx, apt, &excludeID, func() error {
			return s.repo.Update(ctx, apt)
		}); err != nil {
			return nil, err
		}
		return apt, nil
	}

	if err := s.repo.Update(ctx, apt); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return nil, apperrors.NotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to update appointment: %w", err)
	}
	return apt, nil
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status model.AppointmentStatus) error {
	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return apperrors.NotFound("appointment", err)
		}
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	return nil
}

// MarkPrescriptionDispensed is invoked by the dispense.created event
// consumer, keeping the dispensary flow from mutating appointments
// inline.
func (s *Service) MarkPrescriptionDispensed(ctx context.Context, id uuid.UUID) error {
	return s.UpdateStatus(ctx, id, model.AppointmentStatusPrescriptionDispensed)
}

// Delete is the administrative removal; the freed token is never reused,
// so the per-day sequence keeps gaps after deletions.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return apperrors.NotFound("appointment", err)
		}
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	return nil
}

func (s *Service) doctorFee(ctx context.Context, doctorID uuid.UUID) (float64, error) {
	if fee, ok := s.feeCache.Get(doctorID.String()); ok {
		return fee.(float64), nil
	}

	doctor, err := s.doctorRepo.Get(ctx, doctorID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRows) {
			return 0, apperrors.NotFound("doctor", err)
		}
		return 0, fmt.Errorf("failed to get doctor: %w", err)
	}

	s.feeCache.Set(doctorID.String(), doctor.Fee, cache.DefaultExpiration)
	return doctor.Fee, nil
}
