package sdk

type RegisterUserResponse struct {
	UserID int64 `json:"userId"`
}

type RegisterDeviceResponse struct {
	DeviceID int64 `json:"deviceId"`
}

type RegisterTopDirResponse struct {
	TopDirID int64 `json:"topDirId"`
}

type ShareResponse struct {
	TopDirID int64    `json:"topDirId"`
	Editors  []string `json:"editors"`
}

type AllocateResponse struct {
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
}

type LockResponse struct {
	Granted     bool     `json:"granted"`
	NotifyUsers []string `json:"notifyUsers,omitempty"`
}

type UploadResponse struct {
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
}

type PendingUpdate struct {
	Timestamp string `json:"timestamp"`
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
	Hash      string `json:"hash"`
}

type PollResponse struct {
	DeviceID int64            `json:"deviceId"`
	Updates  []*PendingUpdate `json:"updates"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"error"`
}
