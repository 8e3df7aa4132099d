// Package api holds the gateway's JSON wire types and route paths.
package api

import "encoding/json"

const (
	PathClassifyIntent     = "/classifyIntent"
	PathPostHACommand      = "/postHACommand"
	PathSpeechCredentials  = "/get-speech-credentials"
	PathSpeechToken        = "/get-speech-token"
	PathCheckDeviceService = "/check-device-services/"
	PathCheckNotifyService = "/check-notify-services"
)

type ClassifyIntentRequest struct {
	UserPrompt string `json:"userPrompt"`
}

type ClassifyIntentResponse struct {
	Intent string `json:"intent"`
}

type CommandRequest struct {
	Command string `json:"command"`
}

type CommandResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type SpeechCredentialsResponse struct {
	SpeechKey    string `json:"speechKey"`
	SpeechRegion string `json:"speechRegion"`
}

type SpeechTokenResponse struct {
	Token  string `json:"token"`
	Region string `json:"region"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type DeviceServicesResponse struct {
	DeviceState       json.RawMessage `json:"device_state"`
	AvailableServices json.RawMessage `json:"available_services"`
}

type NotifyServicesResponse struct {
	AvailableNotifyServices json.RawMessage `json:"available_notify_services"`
}

// ServiceCall is the Home Assistant call a command is planned into.
type ServiceCall struct {
	URLPath     string         `json:"url_path"`
	EntityID    string         `json:"entity_id"`
	ServiceData map[string]any `json:"service_data,omitempty"`
}
