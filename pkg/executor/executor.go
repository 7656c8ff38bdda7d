package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beaconops/flock/pkg/events"
	"github.com/beaconops/flock/pkg/eventbus"
	"github.com/beaconops/flock/pkg/models"
	"github.com/beaconops/flock/pkg/persistence"
	"github.com/beaconops/flock/pkg/session"
	"github.com/google/uuid"
)

// Request is one unit of work: one action for one account.
type Request struct {
	AccountID string
	Action    models.ActionType

	// TargetURL is where the action starts from. Empty for post and
	// send_notification, which derive their location from the platform.
	TargetURL string

	// Content and MediaIDs apply to post actions only.
	Content  string
	MediaIDs []string
}

// Outcome is the classified result of one invocation. Success covers both
// a performed action and an idempotent no-op (already liked / already
// following): the latter is a distinct sub-kind, not an error.
type Outcome struct {
	AccountID string
	Action    models.ActionType
	Success   bool
	Kind      OutcomeKind
	TargetURL string
	Err       error
}

// ErrorMessage returns the error text for log rows, empty on success.
func (o Outcome) ErrorMessage() string {
	if o.Err == nil {
		return ""
	}

	return o.Err.Error()
}

// Config bounds the readiness wait and script execution. A stuck page
// fails after ReadyMaxAttempts polls instead of hanging the caller.
type Config struct {
	ReadyPollInterval time.Duration
	ReadyMaxAttempts  int
	ScriptTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		ReadyPollInterval: 500 * time.Millisecond,
		ReadyMaxAttempts:  20,
		ScriptTimeout:     10 * time.Second,
	}
}

// Executor performs exactly one action per invocation against the session
// capability. It is the innermost error boundary: every failure comes back
// as a classified Outcome, never as a raised error.
type Executor struct {
	store    persistence.Persistence
	sessions session.Manager
	targets  *session.Targets
	bus      eventbus.EventBus
	config   Config
	logger   *slog.Logger
	now      func() time.Time
}

func NewExecutor(
	store persistence.Persistence,
	sessions session.Manager,
	targets *session.Targets,
	bus eventbus.EventBus,
	config Config,
	logger *slog.Logger,
) *Executor {
	if config.ReadyMaxAttempts <= 0 {
		config = DefaultConfig()
	}

	return &Executor{
		store:    store,
		sessions: sessions,
		targets:  targets,
		bus:      bus,
		config:   config,
		logger:   logger.With("module", "executor"),
		now:      time.Now,
	}
}

// Execute runs one action for one account and classifies the result. The
// render surface is released on every exit path by the session manager's
// scoped acquisition.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	logger := e.logger.With(
		"account_id", req.AccountID,
		"action_type", req.Action,
	)

	outcome := e.execute(ctx, logger, req)

	e.record(ctx, logger, outcome)

	return outcome
}

func (e *Executor) execute(ctx context.Context, logger *slog.Logger, req Request) Outcome {
	account, err := e.store.Accounts().GetByID(ctx, req.AccountID)
	if err != nil {
		return e.failure(req, "", err)
	}

	targetURL, err := e.resolveTarget(req, account)
	if err != nil {
		return e.failure(req, "", err)
	}

	loggedIn, err := e.sessions.HasAuthSignal(ctx, req.AccountID)
	if err != nil {
		return e.failure(req, targetURL, fmt.Errorf("%w: %w", ErrSession, err))
	}

	if !loggedIn {
		return e.failure(req, targetURL, ErrNotLoggedIn)
	}

	scripts, err := scriptsFor(req.Action)
	if err != nil {
		return e.failure(req, targetURL, err)
	}

	alreadyDone := false

	err = e.sessions.WithSurface(ctx, req.AccountID, func(surface session.Surface) error {
		if err := surface.Navigate(ctx, targetURL); err != nil {
			return fmt.Errorf("%w: navigate: %w", ErrSession, err)
		}

		if err := e.waitReady(ctx, surface, scripts.ready); err != nil {
			return err
		}

		performed, err := surface.Run(ctx, scripts.perform(req), e.config.ScriptTimeout)
		if err != nil {
			return fmt.Errorf("%w: perform: %w", ErrSession, err)
		}

		if performed.State == session.StateAlreadyDone {
			alreadyDone = true

			return nil
		}

		if !performed.OK {
			return ErrActionRejected
		}

		// The perform script only reports invocation; the post-condition
		// check confirms the page actually changed state.
		verified, err := surface.Run(ctx, scripts.verify, e.config.ScriptTimeout)
		if err != nil {
			return fmt.Errorf("%w: verify: %w", ErrSession, err)
		}

		if verified.State == session.StateAlreadyDone {
			alreadyDone = true

			return nil
		}

		if !verified.OK {
			return ErrActionRejected
		}

		return nil
	})
	if err != nil {
		logger.Warn("Action failed", "target_url", targetURL, "error", err)

		return e.failure(req, targetURL, err)
	}

	kind := OutcomeCompleted
	if alreadyDone {
		kind = OutcomeAlreadyDone
	}

	logger.Info("Action completed", "target_url", targetURL, "outcome", kind)

	return Outcome{
		AccountID: req.AccountID,
		Action:    req.Action,
		Success:   true,
		Kind:      kind,
		TargetURL: targetURL,
	}
}

// waitReady polls the readiness probe at a fixed interval up to the attempt
// ceiling. It fails with ErrElementTimeout instead of waiting forever.
func (e *Executor) waitReady(ctx context.Context, surface session.Surface, probe string) error {
	for attempt := 1; attempt <= e.config.ReadyMaxAttempts; attempt++ {
		result, err := surface.Run(ctx, probe, e.config.ScriptTimeout)
		if err != nil {
			return fmt.Errorf("%w: readiness probe: %w", ErrSession, err)
		}

		if result.OK {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrSession, ctx.Err())
		case <-time.After(e.config.ReadyPollInterval):
		}
	}

	return ErrElementTimeout
}

func (e *Executor) resolveTarget(req Request, account *models.Account) (string, error) {
	if req.TargetURL != "" {
		return req.TargetURL, nil
	}

	switch req.Action {
	case models.ActionPost:
		return e.targets.ComposeURL(), nil
	case models.ActionSendNotification:
		return e.targets.NotificationsURL(), nil
	case models.ActionCheckStatus:
		return e.targets.ProfileURL(account.Username), nil
	case models.ActionLike, models.ActionRepost, models.ActionFollow, models.ActionUnfollow:
		return "", fmt.Errorf("%w: %s requires a target URL", ErrActionRejected, req.Action)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
}

func (e *Executor) failure(req Request, targetURL string, err error) Outcome {
	return Outcome{
		AccountID: req.AccountID,
		Action:    req.Action,
		Success:   false,
		Kind:      Classify(err),
		TargetURL: targetURL,
		Err:       err,
	}
}

// record appends the executor's own audit row and emits the action event.
// Audit failures are logged but do not change the outcome: the action
// already happened against the live session.
func (e *Executor) record(ctx context.Context, logger *slog.Logger, outcome Outcome) {
	status := models.ActionLogStatusFailed

	switch outcome.Kind {
	case OutcomeCompleted:
		status = models.ActionLogStatusSuccess
	case OutcomeAlreadyDone:
		status = models.ActionLogStatusAlreadyDone
	}

	entry := &models.ActionLog{
		ID:           uuid.New().String(),
		AccountID:    outcome.AccountID,
		ActionType:   outcome.Action,
		TargetURL:    outcome.TargetURL,
		Status:       status,
		ErrorMessage: outcome.ErrorMessage(),
		CreatedAt:    e.now(),
	}

	if err := e.store.Logs().AppendActionLog(ctx, entry); err != nil {
		logger.Error("Failed to append action log", "error", err)
	}

	if e.bus == nil {
		return
	}

	event := events.ActionExecuted{
		BaseEvent:   events.NewBaseEvent(events.ActionExecutedEvent),
		AccountID:   outcome.AccountID,
		ActionType:  outcome.Action,
		TargetURL:   outcome.TargetURL,
		OutcomeKind: string(outcome.Kind),
		Success:     outcome.Success,
		Error:       outcome.ErrorMessage(),
	}

	if err := e.bus.Publish(ctx, outcome.AccountID, event); err != nil {
		logger.Error("Failed to publish action event", "error", err)
	}
}
