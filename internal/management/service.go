package management

import (
	"context"
	"fmt"
	"time"

	"redgrab/internal/cooldown"
	"redgrab/internal/settings"
	"redgrab/internal/stats"
	"redgrab/pkg/cel"
	"redgrab/pkg/errors"
)

// Controller toggles the live event listener. The capture service
// satisfies it.
type Controller interface {
	EnableListener(ctx context.Context) error
	DisableListener(ctx context.Context) error
}

type StatsResponse struct {
	Grabbed     int     `json:"grabbed"`
	TotalAmount float64 `json:"total_amount"`
}

type StatsIncrement struct {
	Grabbed int     `json:"grabbed"`
	Amount  float64 `json:"amount"`
}

type CooldownEntry struct {
	PeerUID string    `json:"peer_uid"`
	Until   time.Time `json:"until"`
}

type Service interface {
	GetPolicy(ctx context.Context) (settings.Policy, error)
	UpdatePolicy(ctx context.Context, pol settings.Policy) (settings.Policy, error)
	Stats(ctx context.Context) (StatsResponse, error)
	AddStats(ctx context.Context, inc StatsIncrement) (StatsResponse, error)
	Cooldowns(ctx context.Context) []CooldownEntry
	ClearCooldowns(ctx context.Context)
	EnableListener(ctx context.Context) error
	DisableListener(ctx context.Context) error
}

type service struct {
	store      settings.Store
	stats      stats.Reporter
	cooldowns  *cooldown.Manager
	eval       *cel.Evaluator
	controller Controller
}

func NewService(store settings.Store, reporter stats.Reporter, cooldowns *cooldown.Manager, eval *cel.Evaluator, controller Controller) Service {
	return &service{
		store:      store,
		stats:      reporter,
		cooldowns:  cooldowns,
		eval:       eval,
		controller: controller,
	}
}

func (s *service) GetPolicy(ctx context.Context) (settings.Policy, error) {
	return s.store.Load(ctx)
}

func (s *service) UpdatePolicy(ctx context.Context, pol settings.Policy) (settings.Policy, error) {
	if err := s.validate(pol); err != nil {
		return settings.Policy{}, err
	}
	if err := s.store.Save(ctx, pol); err != nil {
		return settings.Policy{}, errors.ErrInternal.WithCause(err)
	}
	return pol, nil
}

func (s *service) validate(pol settings.Policy) error {
	switch pol.BlockType {
	case "0", "1", "2":
	default:
		return errors.ErrValidation.WithDetail("field", "blockType")
	}
	if s.eval != nil {
		for i, rule := range pol.CustomRules {
			if err := s.eval.ValidateRule(rule); err != nil {
				return errors.ErrValidation.
					WithCause(err).
					WithDetail("field", fmt.Sprintf("customRules[%d]", i))
			}
		}
	}
	return nil
}

func (s *service) Stats(ctx context.Context) (StatsResponse, error) {
	grabbed, amount, err := s.stats.Totals(ctx)
	if err != nil {
		return StatsResponse{}, errors.ErrInternal.WithCause(err)
	}
	return StatsResponse{Grabbed: grabbed, TotalAmount: amount}, nil
}

func (s *service) AddStats(ctx context.Context, inc StatsIncrement) (StatsResponse, error) {
	if inc.Grabbed < 0 || inc.Amount < 0 {
		return StatsResponse{}, errors.ErrValidation.WithDetail("field", "grabbed/amount")
	}
	if inc.Grabbed > 0 {
		s.stats.AddGrabbed(ctx, inc.Grabbed)
	}
	if inc.Amount > 0 {
		s.stats.AddAmount(ctx, inc.Amount)
	}
	return s.Stats(ctx)
}

func (s *service) Cooldowns(ctx context.Context) []CooldownEntry {
	active := s.cooldowns.Active()
	out := make([]CooldownEntry, 0, len(active))
	for peer, until := range active {
		out = append(out, CooldownEntry{PeerUID: peer, Until: until})
	}
	return out
}

func (s *service) ClearCooldowns(ctx context.Context) {
	s.cooldowns.Clear()
}

func (s *service) EnableListener(ctx context.Context) error {
	return s.controller.EnableListener(ctx)
}

func (s *service) DisableListener(ctx context.Context) error {
	return s.controller.DisableListener(ctx)
}
