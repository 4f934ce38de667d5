package card

import (
	"strconv"
	"strings"

	"leavebot/internal/model"
)

// FormatTaskBlock renders open tasks one per line, assigned tasks first. Each
// line is a bullet followed by "<title> (due <date>, <priority>, <n>%)"; parts
// that are unknown are left out. An empty list yields "".
func FormatTaskBlock(tasks model.TaskList) string {
	lines := make([]string, 0, tasks.Len())
	for _, t := range tasks.Assigned {
		lines = append(lines, taskLine(t))
	}
	for _, t := range tasks.Todo {
		lines = append(lines, taskLine(t))
	}
	return strings.Join(lines, "\n")
}

func taskLine(t model.Task) string {
	var details []string
	if t.DueDate != "" {
		details = append(details, "due "+t.DueDate)
	}
	if t.Priority != "" {
		details = append(details, t.Priority)
	}
	if t.Source == model.TaskSourceAssigned || t.PercentComplete > 0 {
		details = append(details, strconv.Itoa(t.PercentComplete)+"%")
	}

	line := "• " + t.Title
	if len(details) > 0 {
		line += " (" + strings.Join(details, ", ") + ")"
	}
	return line
}
