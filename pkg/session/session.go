// Package session defines the behavioral contract for the per-account
// isolated browsing capability. The engine never touches cookies, pages or
// DOM directly: it asks for an authenticated surface scoped to an account,
// navigates it, and runs bounded scripts against the loaded page. The
// concrete implementation (browser pool, profile storage, selectors) lives
// outside this module.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoSession indicates no session exists for the account.
	ErrNoSession = errors.New("no session for account")

	// ErrSurfaceClosed indicates the render surface was torn down mid-use.
	ErrSurfaceClosed = errors.New("render surface closed")
)

// Well-known page-state tags scripts report back. Implementations may emit
// richer tags; the engine only branches on these.
const (
	// StateAlreadyDone means the page is already in the state the action
	// would have produced, e.g. the like button shows "liked".
	StateAlreadyDone = "already"

	// StateDisabled means the control exists but cannot be activated.
	StateDisabled = "disabled"
)

// ScriptResult is the structured result of a bounded script run.
type ScriptResult struct {
	// OK reports whether the script found the page in the state it probed for.
	OK bool `json:"ok"`

	// State carries an implementation-defined page-state tag, e.g.
	// "liked", "already_liked", "disabled", used for post-condition checks.
	State string `json:"state,omitempty"`

	// Value carries any script return payload.
	Value any `json:"value,omitempty"`
}

// Surface is a disposable, hidden render surface bound to one account's
// session. Surfaces are acquired through Manager.WithSurface and must not
// outlive the callback.
type Surface interface {
	// Navigate loads the given URL and waits for the initial document.
	Navigate(ctx context.Context, url string) error

	// Run executes a bounded script against the loaded page. The script
	// must finish within the timeout or the call fails.
	Run(ctx context.Context, script string, timeout time.Duration) (ScriptResult, error)
}

// Manager is the per-account session capability consumed by the executor.
type Manager interface {
	// HasAuthSignal reports whether the account's session carries a live
	// authentication signal. A false return means any action would land on
	// a login wall, so callers fail fast without acquiring a surface.
	HasAuthSignal(ctx context.Context, accountID string) (bool, error)

	// WithSurface acquires a throwaway surface bound to the account's
	// session, runs fn against it, and tears the surface down on every
	// exit path including panics and errors inside fn.
	WithSurface(ctx context.Context, accountID string, fn func(Surface) error) error
}
