package packages

type UploadRequest struct {
	TopDirID  int64  `form:"topDirId" binding:"required"`
	RelPathID string `form:"relPathId" binding:"required"`
}

type UploadResponse struct {
	TopDirID  int64  `json:"topDirId"`
	RelPathID string `json:"relPathId"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
}

type DownloadRequest struct {
	TopDirID  int64  `form:"topDirId" binding:"required"`
	RelPathID string `form:"relPathId" binding:"required"`
	Hash      string `form:"hash"`
}

type HistoryRequest struct {
	TopDirID  int64  `form:"topDirId" binding:"required"`
	RelPathID string `form:"relPathId" binding:"required"`
}

type HistoryResponse struct {
	TopDirID  int64    `json:"topDirId"`
	RelPathID string   `json:"relPathId"`
	Versions  []string `json:"versions"`
}
