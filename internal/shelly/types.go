package shelly

// StatusDocument is the device's full status response (Gen1 GET /status).
//
// Only the fields the daemon consumes are modelled; unknown fields in the
// device response are ignored by the JSON decoder.
type StatusDocument struct {
	WiFi      WiFiStatus    `json:"wifi_sta"`
	Cloud     CloudStatus   `json:"cloud"`
	MQTT      MQTTStatus    `json:"mqtt"`
	Time      string        `json:"time"`
	Serial    int           `json:"serial"`
	HasUpdate bool          `json:"has_update"`
	MAC       string        `json:"mac"`
	Relays    []RelayStatus `json:"relays"`
	Meters    []MeterStatus `json:"meters"`
	RAMTotal  int           `json:"ram_total"`
	RAMFree   int           `json:"ram_free"`
	FSSize    int           `json:"fs_size"`
	FSFree    int           `json:"fs_free"`

	// Uptime is seconds since the device booted.
	Uptime int `json:"uptime"`
}

// WiFiStatus reports the device's station-mode WiFi connection.
type WiFiStatus struct {
	Connected bool   `json:"connected"`
	SSID      string `json:"ssid"`
	IP        string `json:"ip"`
	RSSI      int    `json:"rssi"`
}

// CloudStatus reports the vendor cloud link state.
type CloudStatus struct {
	Enabled   bool `json:"enabled"`
	Connected bool `json:"connected"`
}

// MQTTStatus reports the device's own MQTT connection state.
// This is the device's broker link, unrelated to the daemon's.
type MQTTStatus struct {
	Connected bool `json:"connected"`
}

// RelayStatus is the per-relay section of the status document, and also
// the full response body of GET /relay/{id}.
type RelayStatus struct {
	// IsOn is the relay's reported output state.
	IsOn bool `json:"ison"`

	// HasTimer reports whether a device-side auto-off/on timer is armed.
	HasTimer       bool  `json:"has_timer"`
	TimerStarted   int64 `json:"timer_started"`
	TimerDuration  int64 `json:"timer_duration"`
	TimerRemaining int64 `json:"timer_remaining"`

	// Source is what last commanded the relay ("http", "button", "mqtt", ...).
	Source string `json:"source"`
}

// MeterStatus is the per-channel power meter section of the status document.
type MeterStatus struct {
	Power   float64 `json:"power"`
	IsValid bool    `json:"is_valid"`
	Total   float64 `json:"total"`
}
