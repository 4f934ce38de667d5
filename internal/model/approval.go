package model

// Card actions echoed back by the platform when a manager presses a button.
const (
	ActionApprove = "approve_leave"
	ActionReject  = "reject_leave"
)

type DecisionStatus string

const (
	StatusApproved DecisionStatus = "APPROVED"
	StatusRejected DecisionStatus = "REJECTED"
)

// StatusForAction maps a card action to its decision status.
func StatusForAction(action string) (DecisionStatus, bool) {
	switch action {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}

// PendingApproval is carried inside the manager's card and echoed back on
// decision. Nothing is stored server side.
type PendingApproval struct {
	RequestID string `json:"request_id,omitempty"`
	UserName  string `json:"user_name"`
	UserEmail string `json:"user_email"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Hours     string `json:"hours"`
	Reason    string `json:"reason"`
}

// NewPendingApproval builds the card payload from completed slots.
func NewPendingApproval(requestID, userName, userEmail string, slots LeaveSlots) PendingApproval {
	return PendingApproval{
		RequestID: requestID,
		UserName:  userName,
		UserEmail: userEmail,
		StartDate: slots.StartDate,
		EndDate:   slots.EndDate,
		Hours:     slots.Hours,
		Reason:    slots.Reason,
	}
}

// User is a directory entry.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}
