package dto

// CreateUserRequest is the admin create body. Role defaults to user
// and status to active when omitted.
type CreateUserRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	DB        string `json:"db"`
	Hostname  string `json:"hostname"`
	UptimeSec uint64 `json:"uptime_sec"`
}
