package model

type TaskSource string

const (
	TaskSourceAssigned TaskSource = "assigned"
	TaskSourceTodo     TaskSource = "todo"
)

// Task is an open work item of a user.
type Task struct {
	Title           string     `json:"title"`
	DueDate         string     `json:"due_date,omitempty"` // YYYY-MM-DD
	Priority        string     `json:"priority,omitempty"`
	PercentComplete int        `json:"percent_complete"`
	Status          string     `json:"status,omitempty"`
	Source          TaskSource `json:"source"`
}

// TaskList holds the two lists returned by the task service.
type TaskList struct {
	Assigned []Task `json:"assigned"`
	Todo     []Task `json:"todo"`
}

func (l TaskList) Len() int {
	return len(l.Assigned) + len(l.Todo)
}
