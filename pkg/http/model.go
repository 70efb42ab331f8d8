package http

// APIResponse represents standard API response.
type APIResponse struct {
	Status    int         `json:"status" example:"200"`
	Message   string      `json:"message" example:"OK"`
	RequestID string      `json:"request_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"rows"`
	Message string                 `json:"message,omitempty" example:"rows is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
