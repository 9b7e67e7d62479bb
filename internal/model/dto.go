package model

// ========== Event DTOs ==========

type EventListRequest struct {
	Before string `form:"before"` // cursor: RFC3339 timestamp
	Limit  int    `form:"limit,default=50"`
}

// ========== Device DTOs ==========

type UpdateDeviceConfigRequest struct {
	FallThreshold   float64 `json:"fall_threshold" binding:"required,gt=0"`
	HRLowThreshold  float64 `json:"hr_low_threshold" binding:"required,gt=0"`
	HRHighThreshold float64 `json:"hr_high_threshold" binding:"required,gtfield=HRLowThreshold"`
	SampleInterval  *int    `json:"sample_interval" binding:"omitempty,gt=0"`
	WifiSSID        string  `json:"wifi_ssid" binding:"max=32"`
	WifiPassword    string  `json:"wifi_password" binding:"max=64"`
}

// ========== Push DTOs ==========

type RegisterPushTokenRequest struct {
	Token    string `json:"token" binding:"required"`
	Platform string `json:"platform" binding:"required,oneof=android ios web"`
}

// ========== Common ==========

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
