package paths

type AllocateRequest struct {
	TopDirID int64 `json:"topDirId" binding:"required"`
}

type AllocateResponse struct {
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
}

type LockRequest struct {
	TopDirID  int64  `json:"topDirId" binding:"required"`
	RelPathID string `json:"relPathId" binding:"required"`
	Holder    string `json:"holder" binding:"required,email"`
}

type LockResponse struct {
	Granted     bool     `json:"granted"`
	NotifyUsers []string `json:"notifyUsers,omitempty"`
}

type UnlockRequest struct {
	TopDirID  int64  `json:"topDirId" binding:"required"`
	RelPathID string `json:"relPathId" binding:"required"`
}
