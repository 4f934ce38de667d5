package sink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"leavebot/internal/model"
)

// AbsenceClient records approved leave in the downstream absence service.
type AbsenceClient struct {
	url        string
	httpClient *http.Client
}

func NewAbsenceClient(url string, timeout time.Duration) *AbsenceClient {
	return &AbsenceClient{url: url, httpClient: newHTTPClient(timeout)}
}

type absenceCall struct {
	Function string      `json:"function"`
	Args     absenceArgs `json:"args"`
}

type absenceArgs struct {
	UserEmail     string  `json:"user_email"`
	StartDate     string  `json:"start_date"`
	EndDate       string  `json:"end_date"`
	Reason        string  `json:"reason"`
	InActiveHours float64 `json:"in_active_hours"`
}

// CreateAbsence submits the request with hours as in_active_hours.
func (c *AbsenceClient) CreateAbsence(ctx context.Context, req model.PendingApproval, hours float64) error {
	if hours <= 0 {
		return fmt.Errorf("create absence: hours must be positive, got %v", hours)
	}
	call := absenceCall{
		Function: "create_absence_request",
		Args: absenceArgs{
			UserEmail:     req.UserEmail,
			StartDate:     req.StartDate,
			EndDate:       req.EndDate,
			Reason:        req.Reason,
			InActiveHours: hours,
		},
	}
	if err := postJSON(ctx, c.httpClient, c.url, call); err != nil {
		return fmt.Errorf("create absence: %w", err)
	}
	return nil
}
