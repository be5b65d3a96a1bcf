package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/internal/repository"
)

var ErrInvalidPlanInput = errors.New("invalid subscription plan input")

type CreatePlanRequest struct {
	Name           string `json:"name"`
	PriceCents     int64  `json:"price_cents"`
	DurationDays   int    `json:"duration_days"`
	TrafficLimitGB int64  `json:"traffic_limit_gb"`
	MaxDevices     int    `json:"max_devices"`
	IsDefault      bool   `json:"is_default"`
}

type UpdatePlanRequest struct {
	Name           *string `json:"name,omitempty"`
	PriceCents     *int64  `json:"price_cents,omitempty"`
	DurationDays   *int    `json:"duration_days,omitempty"`
	TrafficLimitGB *int64  `json:"traffic_limit_gb,omitempty"`
	MaxDevices     *int    `json:"max_devices,omitempty"`
	IsDefault      *bool   `json:"is_default,omitempty"`
}

type PlanService struct {
	planRepo repository.PlanRepository
	logger   *zap.Logger
}

func NewPlanService(planRepo repository.PlanRepository, logger *zap.Logger) *PlanService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PlanService{
		planRepo: planRepo,
		logger:   logger,
	}
}

// Create validates plan invariants up front so the lifecycle engine can
// assume them: positive duration, non-negative quota and price, at least one
// device.
func (s *PlanService) Create(ctx context.Context, req CreatePlanRequest) (*model.SubscriptionPlan, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || req.DurationDays <= 0 || req.TrafficLimitGB < 0 || req.MaxDevices <= 0 || req.PriceCents < 0 {
		return nil, ErrInvalidPlanInput
	}

	plan := &model.SubscriptionPlan{
		ID:             uuid.New(),
		Name:           name,
		PriceCents:     req.PriceCents,
		DurationDays:   req.DurationDays,
		TrafficLimitGB: req.TrafficLimitGB,
		MaxDevices:     req.MaxDevices,
		IsDefault:      req.IsDefault,
	}

	if err := s.planRepo.Create(ctx, plan); err != nil {
		return nil, err
	}

	return s.planRepo.FindByID(ctx, plan.ID)
}

func (s *PlanService) Update(ctx context.Context, planID string, req UpdatePlanRequest) (*model.SubscriptionPlan, error) {
	id, err := uuid.Parse(strings.TrimSpace(planID))
	if err != nil {
		return nil, ErrInvalidPlanInput
	}

	current, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	next := *current
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		if trimmed == "" {
			return nil, ErrInvalidPlanInput
		}
		next.Name = trimmed
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return nil, ErrInvalidPlanInput
		}
		next.PriceCents = *req.PriceCents
	}
	if req.DurationDays != nil {
		if *req.DurationDays <= 0 {
			return nil, ErrInvalidPlanInput
		}
		next.DurationDays = *req.DurationDays
	}
	if req.TrafficLimitGB != nil {
		if *req.TrafficLimitGB < 0 {
			return nil, ErrInvalidPlanInput
		}
		next.TrafficLimitGB = *req.TrafficLimitGB
	}
	if req.MaxDevices != nil {
		if *req.MaxDevices <= 0 {
			return nil, ErrInvalidPlanInput
		}
		next.MaxDevices = *req.MaxDevices
	}
	if req.IsDefault != nil {
		next.IsDefault = *req.IsDefault
	}

	if err := s.planRepo.Update(ctx, &next); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}

	return s.planRepo.FindByID(ctx, id)
}

// Delete removes the plan; dependent keys keep their last computed quota and
// duration (the foreign key is set null, never cascaded).
func (s *PlanService) Delete(ctx context.Context, planID string) error {
	id, err := uuid.Parse(strings.TrimSpace(planID))
	if err != nil {
		return ErrInvalidPlanInput
	}

	if err := s.planRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPlanNotFound
		}
		return err
	}
	return nil
}

func (s *PlanService) Get(ctx context.Context, planID string) (*model.SubscriptionPlan, error) {
	id, err := uuid.Parse(strings.TrimSpace(planID))
	if err != nil {
		return nil, ErrInvalidPlanInput
	}

	plan, err := s.planRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPlanNotFound
		}
		return nil, err
	}
	return plan, nil
}

func (s *PlanService) List(ctx context.Context) ([]*model.SubscriptionPlan, error) {
	return s.planRepo.List(ctx)
}
