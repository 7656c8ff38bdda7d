package executor

import (
	"encoding/json"
	"fmt"

	"github.com/beaconops/flock/pkg/models"
)

// actionScripts holds the three page scripts one action needs: a readiness
// probe, the perform command, and the post-condition check. Scripts are
// opaque command strings to the engine; the session implementation maps
// them onto selectors and DOM calls.
type actionScripts struct {
	ready   string
	command string
	verify  string
}

// perform renders the command string, attaching the post payload when the
// action carries one.
func (s actionScripts) perform(req Request) string {
	if req.Action != models.ActionPost {
		return s.command
	}

	payload, _ := json.Marshal(map[string]any{
		"content":  req.Content,
		"mediaIds": req.MediaIDs,
	})

	return fmt.Sprintf("%s %s", s.command, payload)
}

// scriptsFor is the single dispatch point over the closed action set. A new
// action type extends this switch or it does not execute.
func scriptsFor(action models.ActionType) (actionScripts, error) {
	switch action {
	case models.ActionPost:
		return actionScripts{ready: "probe:composer", command: "perform:post", verify: "verify:post"}, nil
	case models.ActionLike:
		return actionScripts{ready: "probe:like", command: "perform:like", verify: "verify:like"}, nil
	case models.ActionRepost:
		return actionScripts{ready: "probe:repost", command: "perform:repost", verify: "verify:repost"}, nil
	case models.ActionFollow:
		return actionScripts{ready: "probe:follow", command: "perform:follow", verify: "verify:follow"}, nil
	case models.ActionUnfollow:
		return actionScripts{ready: "probe:unfollow", command: "perform:unfollow", verify: "verify:unfollow"}, nil
	case models.ActionCheckStatus:
		return actionScripts{ready: "probe:profile", command: "perform:check_status", verify: "verify:check_status"}, nil
	case models.ActionSendNotification:
		return actionScripts{ready: "probe:notifications", command: "perform:send_notification", verify: "verify:send_notification"}, nil
	default:
		return actionScripts{}, fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
}
