package backend

// Feed describes the endpoints of one monitored subsystem
type Feed struct {
	Name     string `yaml:"name"`
	Title    string `yaml:"title"`
	ItemsKey string `yaml:"items_key"`

	BatchPath  string `yaml:"batch_path"`
	ClearPath  string `yaml:"clear_path"`
	StatusPath string `yaml:"status_path"`
	StartPath  string `yaml:"start_path"`
	StopPath   string `yaml:"stop_path"`

	// Optional
	LoginPath string `yaml:"login_path"`
	SendPath  string `yaml:"send_path"`
}

// GatewayFeed is the Easyberry gateway exchange log
func GatewayFeed() Feed {
	return Feed{
		Name:       "easyberry",
		Title:      "Easyberry Exchanges",
		ItemsKey:   "easyberry",
		BatchPath:  "/debug/easyberry",
		ClearPath:  "/debug/easyberry/clear",
		StatusPath: "/easyberry/status",
		StartPath:  "/easyberry/start",
		StopPath:   "/easyberry/stop",
		LoginPath:  "/easyberry/login",
		SendPath:   "/easyberry/send",
	}
}

// PollerFeed is the Modbus device-poller packet log
func PollerFeed() Feed {
	return Feed{
		Name:       "packets",
		Title:      "Polling Packet Log",
		ItemsKey:   "packets",
		BatchPath:  "/debug/packets",
		ClearPath:  "/debug/packets/clear",
		StatusPath: "/debug/polling/status",
		StartPath:  "/debug/polling/start",
		StopPath:   "/debug/polling/stop",
	}
}

// DefaultFeeds returns both monitored feeds
func DefaultFeeds() []Feed {
	return []Feed{GatewayFeed(), PollerFeed()}
}

// WithDefaults fills empty paths from the generic /debug/{feed} pattern
func (f Feed) WithDefaults() Feed {
	if f.Title == "" {
		f.Title = f.Name
	}
	if f.ItemsKey == "" {
		f.ItemsKey = "items"
	}
	if f.BatchPath == "" {
		f.BatchPath = "/debug/" + f.Name
	}
	if f.ClearPath == "" {
		f.ClearPath = "/debug/" + f.Name + "/clear"
	}
	if f.StatusPath == "" {
		f.StatusPath = "/debug/" + f.Name + "/status"
	}
	if f.StartPath == "" {
		f.StartPath = "/" + f.Name + "/start"
	}
	if f.StopPath == "" {
		f.StopPath = "/" + f.Name + "/stop"
	}
	return f
}
