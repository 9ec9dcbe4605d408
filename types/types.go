package types

// ---- Session state (retained on the local bus) ----

// SessionLevel is the coarse state of the broker session.
type SessionLevel string

const (
	SessionDisconnected        SessionLevel = "disconnected"
	SessionConnecting          SessionLevel = "connecting"
	SessionConnected           SessionLevel = "connected"
	SessionSubscriptionPending SessionLevel = "subscription_pending"
	SessionReady               SessionLevel = "ready"
)

type SessionState struct {
	Level   SessionLevel `json:"level"`
	Status  string       `json:"status"` // short code, e.g. "retrying", "retries_exhausted"
	Attempt int          `json:"attempt,omitempty"`
	Error   string       `json:"error,omitempty"`
	TS      int64        `json:"ts_ms"`
}

// ---- Hub status (…/hub/status) ----

// Per-quantity sensor status values.
const (
	SensorActive = "active"
	SensorError  = "error"
)

type SensorStatus struct {
	QuantityA string `json:"quantityA"`
	QuantityB string `json:"quantityB"`
}

// HubStatus carries the last readings from the pump node. A nil quantity
// encodes as JSON null and pairs with SensorError.
type HubStatus struct {
	QuantityA      *float64     `json:"quantityA"`
	QuantityB      *float64     `json:"quantityB"`
	ActuatorActive bool         `json:"actuator_active"`
	SensorStatus   SensorStatus `json:"sensor_status"`
}

// ---- Capture metadata (…/hub/cam/image_status) ----

const (
	ImageUploaded  = "uploaded"
	UploadHTTPPost = "http_post"
)

type ImageStatus struct {
	Status       string `json:"status"`
	Filename     string `json:"filename"`
	Resolution   string `json:"resolution"` // "WxH"
	SizeBytes    int    `json:"size_bytes"`
	UploadMethod string `json:"upload_method"`
}

// ---- Plant telemetry (…/plant/node1/data) ----

type PlantData struct {
	TempSoilC   float64  `json:"temp_soil_c"`  // 1 decimal, -99.0 when invalid
	MoistureRaw int      `json:"moisture_raw"` // averaged ADC counts
	LightLux    float64  `json:"light_lux"`    // whole lux, -1 on error
	UVVoltage   float64  `json:"uv_voltage"`   // 2 decimals
	ECVoltage   float64  `json:"ec_voltage"`   // 3 decimals
	ECCompMsCm  *float64 `json:"ec_comp_ms_cm,omitempty"`
}

// ---- Inbound pump command (…/command/hub/pump) ----

const (
	PumpStateOn  = "ON"
	PumpStateOff = "OFF"
)
