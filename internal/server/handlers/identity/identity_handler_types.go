package identity

type RegisterUserRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type RegisterUserResponse struct {
	UserID int64 `json:"userId"`
}

type RegisterDeviceRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type RegisterDeviceResponse struct {
	DeviceID int64 `json:"deviceId"`
}

type RegisterTopDirRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type RegisterTopDirResponse struct {
	TopDirID int64 `json:"topDirId"`
}

type ShareRequest struct {
	TopDirID int64  `json:"topDirId" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
}

type ShareResponse struct {
	TopDirID int64    `json:"topDirId"`
	Editors  []string `json:"editors"`
}
