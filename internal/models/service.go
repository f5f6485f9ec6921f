package models

type Service struct {
	ServiceID string `json:"service_id"`
	SectorID  string `json:"sector_id"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	Mode      string `json:"mode"`
	Active    bool   `json:"active"`
}

// Service modes decide which engine handles the service.
const (
	ModeQueue       = "queue"
	ModeAppointment = "appointment"
	ModeOnline      = "online"
)

type Sector struct {
	SectorID string `json:"sector_id"`
	Name     string `json:"name"`
}
