package models

type CreateUserRequest struct {
	Username string   `json:"username"`
	Manager  string   `json:"manager,omitempty"`
	Roles    []string `json:"roles"`
}

// CreateUserResponse carries the API key once; only its hash is stored.
type CreateUserResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	TenantID string   `json:"tenantId"`
	Roles    []string `json:"roles"`
	ApiKey   string   `json:"apiKey"`
}

type AssignRolesRequest struct {
	Roles []string `json:"roles"`
}

type ErrorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	InstanceID string `json:"instanceId,omitempty"`
	StepNumber int    `json:"stepNumber,omitempty"`
	Status     string `json:"status,omitempty"`
}
