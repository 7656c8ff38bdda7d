package models

// ActionType is the closed set of actions the executor knows how to perform.
// Adding a new action type is a compile-time change: every switch over
// ActionType in the executor must be extended.
type ActionType string

const (
	ActionPost             ActionType = "post"
	ActionLike             ActionType = "like"
	ActionRepost           ActionType = "repost"
	ActionFollow           ActionType = "follow"
	ActionUnfollow         ActionType = "unfollow"
	ActionCheckStatus      ActionType = "check_status"
	ActionSendNotification ActionType = "send_notification"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionPost, ActionLike, ActionRepost, ActionFollow, ActionUnfollow,
		ActionCheckStatus, ActionSendNotification:
		return true
	}

	return false
}

// ValidTaskAction reports whether t may be configured on an automation task.
// Tasks drive engagement actions only; posting goes through scheduled posts.
func (t ActionType) ValidTaskAction() bool {
	switch t {
	case ActionLike, ActionRepost, ActionFollow, ActionUnfollow:
		return true
	}

	return false
}
