package graphql

import (
	"fmt"

	"github.com/hitoshi/todogql/internal/model"
)

// TodoStatus enumの値とDBの値の対応
var (
	statusToEnum = map[model.TodoStatus]string{
		model.TodoStatusPending:    "PENDING",
		model.TodoStatusInProgress: "IN_PROGRESS",
		model.TodoStatusDone:       "DONE",
	}
	enumToStatus = map[string]model.TodoStatus{
		"PENDING":     model.TodoStatusPending,
		"IN_PROGRESS": model.TodoStatusInProgress,
		"DONE":        model.TodoStatusDone,
	}
)

func statusEnum(s model.TodoStatus) (string, error) {
	v, ok := statusToEnum[s]
	if !ok {
		return "", fmt.Errorf("unknown todo status %q", s)
	}
	return v, nil
}

func statusFromEnum(v string) (model.TodoStatus, error) {
	s, ok := enumToStatus[v]
	if !ok {
		return "", model.NewInvalidInputError(fmt.Sprintf("unknown status %q", v))
	}
	return s, nil
}
