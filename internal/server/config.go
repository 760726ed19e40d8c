package server

const (
	DefaultAddr    = "127.0.0.1:8080"
	DefaultWorkers = 2
)

type Config struct {
	HTTP    HTTPConfig
	DBPath  string
	Workers int // initial propagation worker count
}

type HTTPConfig struct {
	Addr     string
	CertFile string
	KeyFile  string
}
