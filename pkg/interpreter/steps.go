package interpreter

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/beaconops/flock/pkg/executor"
	"github.com/beaconops/flock/pkg/governor"
	"github.com/beaconops/flock/pkg/models"
	"github.com/google/uuid"
)

func defaultRandFloat() float64 { return rand.Float64() }

const loopAccountVariable = "loop_account_id"

// walk drives the run from startID until a terminal node, a failure without
// a failure edge, or a suspension. stopAt, when non-empty, ends the walk
// successfully as soon as an edge points at it; loop bodies use this so a
// body chaining back to its loop node ends the iteration there. inline marks
// walks inside loop bodies and parallel branches, where delay nodes sleep in
// process instead of suspending the whole run.
func (i *Interpreter) walk(
	ctx context.Context,
	arena map[string]*models.WorkflowStep,
	state *models.RunState,
	startID string,
	stopAt string,
	inline bool,
) (bool, *suspension, error) {
	currentID := startID

	for {
		if stopAt != "" && currentID == stopAt {
			return true, nil, nil
		}

		step, found := arena[currentID]
		if !found {
			return false, nil, fmt.Errorf("step not found in workflow graph: %s", currentID)
		}

		state.Visits[currentID]++
		if state.Visits[currentID] > i.config.MaxVisitsPerStep {
			return false, nil, fmt.Errorf("%w: step %s visited %d times",
				ErrVisitCeiling, currentID, state.Visits[currentID])
		}

		if !step.Enabled {
			entry := i.beginStepLog(ctx, state, step)
			i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusSkipped, "", nil)

			if step.OnSuccess == nil {
				return true, nil, nil
			}

			currentID = *step.OnSuccess

			continue
		}

		ok, susp, err := i.visit(ctx, arena, state, step, inline)
		if err != nil {
			return false, nil, err
		}

		if susp != nil {
			return false, susp, nil
		}

		next := step.OnSuccess
		if !ok {
			next = step.OnFailure
		}

		if next == nil {
			return ok, nil, nil
		}

		currentID = *next
	}
}

// visit executes one node and reports which edge to follow. The visit's log
// row is appended as running on entry and settled to a terminal status on
// exit.
func (i *Interpreter) visit(
	ctx context.Context,
	arena map[string]*models.WorkflowStep,
	state *models.RunState,
	step *models.WorkflowStep,
	inline bool,
) (bool, *suspension, error) {
	entry := i.beginStepLog(ctx, state, step)

	switch step.StepType {
	case models.StepAction:
		ok, result, err := i.visitAction(ctx, state, step)
		if err != nil {
			i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed, err.Error(), nil)

			return false, nil, err
		}

		status := models.WorkflowLogStatusCompleted
		if !ok {
			status = models.WorkflowLogStatusFailed
		}

		i.settleStepLog(ctx, state, entry, status, "", map[string]any{
			"accounts_processed": result.AccountsProcessed,
			"success_count":      result.SuccessCount,
			"failure_count":      result.FailureCount,
		})

		return ok, nil, nil

	case models.StepCondition:
		passed, err := i.evaluateCondition(ctx, state, step)
		if err != nil {
			i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed, err.Error(), nil)

			return false, nil, err
		}

		i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusCompleted, "",
			map[string]any{"passed": passed})

		return passed, nil, nil

	case models.StepLoop:
		ok, err := i.visitLoop(ctx, arena, state, step)
		if err != nil {
			i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed, err.Error(), nil)

			return false, nil, err
		}

		status := models.WorkflowLogStatusCompleted
		if !ok {
			status = models.WorkflowLogStatusFailed
		}

		i.settleStepLog(ctx, state, entry, status, "", nil)

		return ok, nil, nil

	case models.StepDelay:
		return i.visitDelay(ctx, state, step, inline, entry)

	case models.StepParallel:
		ok, err := i.visitParallel(ctx, arena, state, step)
		if err != nil {
			i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed, err.Error(), nil)

			return false, nil, err
		}

		status := models.WorkflowLogStatusCompleted
		if !ok {
			status = models.WorkflowLogStatusFailed
		}

		i.settleStepLog(ctx, state, entry, status, "", nil)

		return ok, nil, nil

	default:
		i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed,
			"unknown step type: "+string(step.StepType), nil)

		return false, nil, fmt.Errorf("unknown step type: %s", step.StepType)
	}
}

// visitAction runs the node's action across its accounts, one lease each.
// The node fails only when attempts were made and none succeeded; a partial
// failure still follows the success edge, mirroring batch semantics.
func (i *Interpreter) visitAction(ctx context.Context, state *models.RunState, step *models.WorkflowStep) (bool, models.WorkflowResultData, error) {
	var config models.StepActionConfig
	if err := models.DecodeStepConfig(step.ActionConfig, &config); err != nil {
		return false, models.WorkflowResultData{}, err
	}

	accountIDs, err := i.resolveAccounts(ctx, state, config)
	if err != nil {
		return false, models.WorkflowResultData{}, err
	}

	targetURL := ""
	if config.TargetType != "" {
		targetURL, err = i.targets.Resolve(config.TargetType, config.TargetValue)
		if err != nil {
			return false, models.WorkflowResultData{}, err
		}
	}

	var result models.WorkflowResultData

	for idx, accountID := range accountIDs {
		if idx > 0 {
			i.sleep(ctx, i.governor.Jitter())
		}

		lease, err := i.governor.TryAcquire(ctx, accountID)
		if err != nil {
			if errors.Is(err, governor.ErrAccountBusy) {
				continue
			}

			return false, result, err
		}

		outcome := i.executor.Execute(ctx, executor.Request{
			AccountID: accountID,
			Action:    config.ActionType,
			TargetURL: targetURL,
			Content:   config.Content,
			MediaIDs:  config.MediaIDs,
		})

		if err := i.governor.Release(ctx, lease); err != nil {
			i.logger.Error("Failed to release lease",
				"account_id", accountID, "error", err)
		}

		result.AccountsProcessed++
		result.ActionsExecuted++

		if outcome.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}

	state.Result.Merge(result)

	ok := result.ActionsExecuted == 0 || result.SuccessCount > 0

	return ok, result, nil
}

func (i *Interpreter) resolveAccounts(ctx context.Context, state *models.RunState, config models.StepActionConfig) ([]string, error) {
	if len(config.AccountIDs) > 0 {
		return config.AccountIDs, nil
	}

	if config.AccountGroupID != "" {
		accounts, err := i.store.Accounts().ByGroup(ctx, config.AccountGroupID)
		if err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(accounts))
		for _, account := range accounts {
			ids = append(ids, account.ID)
		}

		return ids, nil
	}

	// Inside a per-account loop the body inherits the iteration's account.
	if accountID, _ := state.Variables[loopAccountVariable].(string); accountID != "" {
		return []string{accountID}, nil
	}

	return nil, errors.New("action step has no accounts configured")
}

// visitLoop runs the body subgraph once per iteration. Per-account loops
// expose the iteration's account to the body through the run state.
func (i *Interpreter) visitLoop(ctx context.Context, arena map[string]*models.WorkflowStep, state *models.RunState, step *models.WorkflowStep) (bool, error) {
	var config models.StepLoopConfig
	if err := models.DecodeStepConfig(step.ActionConfig, &config); err != nil {
		return false, err
	}

	if config.BodyStepID == "" {
		return false, errors.New("loop step has no body")
	}

	iterations := config.LoopCount
	perAccount := len(config.LoopAccountIDs) > 0

	if perAccount {
		iterations = len(config.LoopAccountIDs)
	}

	if iterations <= 0 {
		return true, nil
	}

	defer delete(state.Variables, loopAccountVariable)

	for iteration := 0; iteration < iterations; iteration++ {
		if perAccount {
			state.Variables[loopAccountVariable] = config.LoopAccountIDs[iteration]
		}

		ok, _, err := i.walk(ctx, arena, state, config.BodyStepID, step.ID, true)
		if err != nil {
			return false, err
		}

		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// visitDelay parks the run behind a durable continuation. Inside loop bodies
// and parallel branches the delay sleeps in process instead, since only the
// top-level walk can suspend the whole run.
func (i *Interpreter) visitDelay(ctx context.Context, state *models.RunState, step *models.WorkflowStep, inline bool, entry *models.WorkflowLog) (bool, *suspension, error) {
	var config models.StepDelayConfig
	if err := models.DecodeStepConfig(step.ActionConfig, &config); err != nil {
		i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusFailed, err.Error(), nil)

		return false, nil, err
	}

	duration := time.Duration(config.DelayMinutes)*time.Minute +
		time.Duration(config.DelaySeconds)*time.Second

	if inline || step.OnSuccess == nil {
		i.sleep(ctx, duration)
		i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusCompleted, "", nil)

		return true, nil, nil
	}

	i.settleStepLog(ctx, state, entry, models.WorkflowLogStatusCompleted, "",
		map[string]any{"suspended_for": duration.String()})

	return false, &suspension{
		resumeAt:   i.now().Add(duration),
		nextStepID: *step.OnSuccess,
	}, nil
}

// visitParallel fans the branch subgraphs out concurrently, each with its
// own state copy, then merges the aggregates back. The node's outcome is
// the AND of branch outcomes unless the node tolerates partial success.
func (i *Interpreter) visitParallel(ctx context.Context, arena map[string]*models.WorkflowStep, state *models.RunState, step *models.WorkflowStep) (bool, error) {
	var config models.StepParallelConfig
	if err := models.DecodeStepConfig(step.ActionConfig, &config); err != nil {
		return false, err
	}

	if len(config.BranchStepIDs) == 0 {
		return true, nil
	}

	type branchResult struct {
		ok     bool
		err    error
		result models.WorkflowResultData
		visits map[string]int
	}

	results := make([]branchResult, len(config.BranchStepIDs))

	var wg sync.WaitGroup

	for idx, branchID := range config.BranchStepIDs {
		wg.Add(1)

		go func(idx int, branchID string) {
			defer wg.Done()

			branchState := &models.RunState{
				RunID:      state.RunID,
				WorkflowID: state.WorkflowID,
				Visits:     make(map[string]int),
				Variables:  cloneVariables(state.Variables),
			}

			ok, _, err := i.walk(ctx, arena, branchState, branchID, "", true)

			results[idx] = branchResult{
				ok:     ok,
				err:    err,
				result: branchState.Result,
				visits: branchState.Visits,
			}
		}(idx, branchID)
	}

	wg.Wait()

	succeeded := 0

	for _, branch := range results {
		if branch.err != nil {
			return false, branch.err
		}

		state.Result.Merge(branch.result)

		for stepID, visits := range branch.visits {
			state.Visits[stepID] += visits
		}

		if branch.ok {
			succeeded++
		}
	}

	if config.ToleratePartial {
		return succeeded > 0, nil
	}

	return succeeded == len(results), nil
}

// evaluateCondition applies the node's single predicate against live data.
func (i *Interpreter) evaluateCondition(ctx context.Context, state *models.RunState, step *models.WorkflowStep) (bool, error) {
	var config models.StepConditionConfig
	if err := models.DecodeStepConfig(step.ConditionConfig, &config); err != nil {
		return false, err
	}

	accountID := config.AccountID
	if accountID == "" {
		accountID, _ = state.Variables[loopAccountVariable].(string)
	}

	switch config.Kind {
	case "account_status":
		account, err := i.store.Accounts().GetByID(ctx, accountID)
		if err != nil {
			return false, err
		}

		return string(account.Status) == config.AccountStatus, nil

	case "has_proxy":
		account, err := i.store.Accounts().GetByID(ctx, accountID)
		if err != nil {
			return false, err
		}

		return account.HasProxy(), nil

	case "time_window":
		local := i.now().Local()

		if len(config.Weekdays) > 0 && !slices.Contains(config.Weekdays, int(local.Weekday())) {
			return false, nil
		}

		// Equal bounds mean no hour constraint, so a weekdays-only window
		// stays open all day.
		if config.FromHour == config.ToHour {
			return true, nil
		}

		hour := local.Hour()
		if config.FromHour < config.ToHour {
			return hour >= config.FromHour && hour < config.ToHour, nil
		}

		// Window wraps past midnight, e.g. 22 to 6.
		return hour >= config.FromHour || hour < config.ToHour, nil

	case "action_count":
		count, err := i.store.Logs().ActionCountForAccount(ctx, accountID)
		if err != nil {
			return false, err
		}

		if config.MinActions > 0 && count < config.MinActions {
			return false, nil
		}

		if config.MaxActions > 0 && count > config.MaxActions {
			return false, nil
		}

		return true, nil

	case "random":
		return i.randFloat() < config.Chance, nil

	default:
		return false, fmt.Errorf("unknown condition kind: %s", config.Kind)
	}
}

func cloneVariables(variables map[string]any) map[string]any {
	clone := make(map[string]any, len(variables))
	for key, value := range variables {
		clone[key] = value
	}

	return clone
}

// beginStepLog appends the visit's row with status running on node entry.
// Log write failures are reported but never fail the run.
func (i *Interpreter) beginStepLog(ctx context.Context, state *models.RunState, step *models.WorkflowStep) *models.WorkflowLog {
	stepID := step.ID

	entry := &models.WorkflowLog{
		ID:         uuid.New().String(),
		WorkflowID: step.WorkflowID,
		RunID:      state.RunID,
		StepID:     &stepID,
		Status:     models.WorkflowLogStatusRunning,
		StartedAt:  i.now(),
	}

	if err := i.store.Logs().AppendWorkflowLog(ctx, entry); err != nil {
		i.logger.Error("Failed to append step log",
			"run_id", state.RunID, "step_id", step.ID, "error", err)
	}

	return entry
}

// settleStepLog flips the visit's row to its terminal status on node exit.
func (i *Interpreter) settleStepLog(
	ctx context.Context,
	state *models.RunState,
	entry *models.WorkflowLog,
	status models.WorkflowLogStatus,
	errorMessage string,
	resultData map[string]any,
) {
	completedAt := i.now()

	entry.Status = status
	entry.CompletedAt = &completedAt
	entry.ErrorMessage = errorMessage
	entry.ResultData = resultData

	if err := i.store.Logs().UpdateWorkflowLog(ctx, entry); err != nil {
		i.logger.Error("Failed to settle step log",
			"run_id", state.RunID, "log_id", entry.ID, "error", err)
	}
}
