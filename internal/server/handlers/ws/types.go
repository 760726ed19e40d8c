package ws

// ClientInfo describes one connected device.
type ClientInfo struct {
	User     string
	DeviceID string
	IPAddr   string
}

// Notice is pushed to a device when the engine lands a change on its
// sync queue. The device reacts by polling /api/v1/updates.
type Notice struct {
	Type    string `json:"type"`
	Pending int    `json:"pending,omitempty"`
}

const NoticeSync = "sync"
