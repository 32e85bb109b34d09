package common

import "github.com/pion/webrtc/v4"

// SoftwareName is the name of this software
const SoftwareName = "strangerchat"

// SoftwareVersion is the version of this software
const SoftwareVersion = "v1.0.0"

// APIVersion is the version of the REST and websocket API implemented by the server
const APIVersion uint = 1

// InfoResponse is the JSON response to the /info REST method
type InfoResponse struct {
	Software string `json:"software"`
	Version  string `json:"version"`
	API      uint   `json:"apiVersion"`
}

// StatsResponse is the JSON response to the /stats REST method
type StatsResponse struct {
	Connected    int    `json:"connected"`
	Idle         int    `json:"idle"`
	Searching    int    `json:"searching"`
	Paired       int    `json:"paired"`
	Queued       int    `json:"queued"`
	MatchesTotal uint64 `json:"matchesTotal"`
	RelayedTotal uint64 `json:"relayedTotal"`
	DroppedTotal uint64 `json:"droppedTotal"`
}

// ICEServersResponse is the JSON response to the /ice-servers REST method. Browsers pass
// IceServers straight into their RTCPeerConnection configuration.
type ICEServersResponse struct {
	IceServers []webrtc.ICEServer `json:"iceServers"`
}
