package handlers

// WalletRequest is the request body for creating a tracked wallet
type WalletRequest struct {
	Address  string   `json:"address" binding:"required"`
	Alias    string   `json:"alias"`
	Tags     []string `json:"tags"`
	IsActive *bool    `json:"is_active"`
}

// WalletUpdateRequest is the request body for updating a tracked wallet
type WalletUpdateRequest struct {
	Alias    *string  `json:"alias"`
	Tags     []string `json:"tags"`
	IsActive *bool    `json:"is_active"`
}

// SignalStatusRequest is the request body for a manual signal transition
type SignalStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
