package models

import "time"

type Citizen struct {
	CitizenID string    `json:"citizen_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	RoleCitizen = "citizen"
	RoleOfficer = "officer"
)
