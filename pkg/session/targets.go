package session

import (
	"fmt"
	"net/url"

	"github.com/beaconops/flock/pkg/models"
)

// Targets resolves automation target types to platform URLs. The base URL
// is configurable so the same engine drives staging mirrors in tests.
type Targets struct {
	baseURL string
}

// NewTargets creates a resolver rooted at the platform base URL.
func NewTargets(baseURL string) *Targets {
	return &Targets{baseURL: baseURL}
}

// Resolve returns the URL an action against the given target starts from.
func (t *Targets) Resolve(targetType models.TargetType, targetValue string) (string, error) {
	switch targetType {
	case models.TargetTimeline:
		return t.baseURL + "/home", nil
	case models.TargetKeyword:
		return fmt.Sprintf("%s/search?q=%s", t.baseURL, url.QueryEscape(targetValue)), nil
	case models.TargetHashtag:
		return fmt.Sprintf("%s/search?q=%s", t.baseURL, url.QueryEscape("#"+targetValue)), nil
	case models.TargetUserList:
		return fmt.Sprintf("%s/%s", t.baseURL, url.PathEscape(targetValue)), nil
	default:
		return "", fmt.Errorf("unknown target type: %s", targetType)
	}
}

// ComposeURL returns the posting composer location.
func (t *Targets) ComposeURL() string {
	return t.baseURL + "/compose"
}

// NotificationsURL returns the notifications location.
func (t *Targets) NotificationsURL() string {
	return t.baseURL + "/notifications"
}

// ProfileURL returns an account profile location.
func (t *Targets) ProfileURL(username string) string {
	return fmt.Sprintf("%s/%s", t.baseURL, url.PathEscape(username))
}
