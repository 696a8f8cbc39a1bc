package account

import "github.com/co2market/auth-service/pkg/event"

// Outbox record types and routing keys.
const (
	EventTypeRegistered = "USER_REGISTERED"
	EventTypeLogin      = "USER_LOGIN"

	RoutingKeyRegistered = "auth.user.registered"
	RoutingKeyLoggedIn   = "auth.user.loggedin"
)

// payloadTypeLoggedIn is the event_type inside the login body. It differs
// from the record type and consumers key on it.
const payloadTypeLoggedIn = "USER_LOGGED_IN"

const (
	actionRegistered = "REGISTERED"
	actionLoggedIn   = "LOGGED_IN"
)

// UserEvent is the body of every user event.
type UserEvent struct {
	event.Metadata
	UserID           string `json:"user_id"`
	Username         string `json:"username"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	Region           string `json:"region,omitempty"`
	Enabled          bool   `json:"enabled"`
	Action           string `json:"action"`
	IPAddress        string `json:"ip_address,omitempty"`
	UserAgent        string `json:"user_agent,omitempty"`
	OrganizationName string `json:"organization_name,omitempty"`
	VehicleMake      string `json:"vehicle_make,omitempty"`
	VehicleModel     string `json:"vehicle_model,omitempty"`
	PhoneNumber      string `json:"phone_number,omitempty"`
}

func registeredEvent(u *User) *UserEvent {
	return &UserEvent{
		Metadata:         event.Metadata{EventType: EventTypeRegistered},
		UserID:           u.ID,
		Username:         u.Username,
		Email:            u.Email,
		Role:             u.Role,
		Region:           u.Region,
		Enabled:          u.Enabled,
		Action:           actionRegistered,
		OrganizationName: u.OrganizationName,
		VehicleMake:      u.VehicleMake,
		VehicleModel:     u.VehicleModel,
		PhoneNumber:      u.PhoneNumber,
	}
}

func loggedInEvent(u *User, ip, userAgent string) *UserEvent {
	return &UserEvent{
		Metadata:    event.Metadata{EventType: payloadTypeLoggedIn},
		UserID:      u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Role:        u.Role,
		Region:      u.Region,
		Enabled:     u.Enabled,
		Action:      actionLoggedIn,
		IPAddress:   ip,
		UserAgent:   userAgent,
		PhoneNumber: u.PhoneNumber,
	}
}
