package models

import "errors"

// ActionKind selects which side effect an action node performs.
type ActionKind string

const (
	ActionKindSendMessage ActionKind = "send_message"
	ActionKindSendChat    ActionKind = "send_chat"
	ActionKindCreateTask  ActionKind = "create_task"
)

// ActionConfig is a tagged variant per action kind. Each kind carries only
// its own fields so a message body can never be reinterpreted as a task
// title.
type ActionConfig struct {
	Kind    ActionKind           `json:"kind"              validate:"required"`
	Message *MessageActionConfig `json:"message,omitempty"`
	Task    *TaskActionConfig    `json:"task,omitempty"`
}

// MessageActionConfig configures send_message and send_chat actions. Text
// supports {{field}} interpolation against the enrollment context.
type MessageActionConfig struct {
	Text      string `json:"text"                 validate:"required"`
	Channel   string `json:"channel,omitempty"`
	StickerID string `json:"sticker_id,omitempty"`
}

// TaskActionConfig configures create_task actions. DueInDays offsets the due
// timestamp from execution time; GenerateScript requests best-effort call
// script content from the content generator.
type TaskActionConfig struct {
	Title          string `json:"title"           validate:"required"`
	DueInDays      int    `json:"due_in_days"     validate:"gte=0"`
	GenerateScript bool   `json:"generate_script"`
}

func (a *ActionConfig) validate() error {
	switch a.Kind {
	case ActionKindSendMessage, ActionKindSendChat:
		if a.Message == nil {
			return errors.New("message config required for " + string(a.Kind))
		}

		if a.Task != nil {
			return errors.New("task config not allowed for " + string(a.Kind))
		}
	case ActionKindCreateTask:
		if a.Task == nil {
			return errors.New("task config required for create_task")
		}

		if a.Message != nil {
			return errors.New("message config not allowed for create_task")
		}
	default:
		return errors.New("unknown action kind: " + string(a.Kind))
	}

	return nil
}
