// Package ipc handles inter-process communication between the daemon and
// clients over a local socket, as newline-delimited JSON.
package ipc

import (
	"encoding/json"
	"fmt"
)

// CommandType represents the type of command
type CommandType string

const (
	CmdStatus CommandType = "status"
	CmdPlay   CommandType = "play"
	CmdToggle CommandType = "toggle"
	CmdStop   CommandType = "stop"
	CmdSeek   CommandType = "seek"
	CmdNext   CommandType = "next"
	CmdPrev   CommandType = "prev"
	CmdVolume CommandType = "volume"

	// Queue and mode commands
	CmdSetShuffle  CommandType = "setShuffle"
	CmdCycleRepeat CommandType = "cycleRepeat"
	CmdABLoop      CommandType = "abLoop"
	CmdQueueMove   CommandType = "queueMove"
	CmdQueueRemove CommandType = "queueRemove"

	// Library commands
	CmdRescan CommandType = "rescan"

	// Config commands
	CmdGetConfig CommandType = "getConfig"
	CmdSetConfig CommandType = "setConfig"

	// Schedule commands
	CmdScheduleList   CommandType = "scheduleList"
	CmdScheduleCreate CommandType = "scheduleCreate"
	CmdScheduleUpdate CommandType = "scheduleUpdate"
	CmdScheduleDelete CommandType = "scheduleDelete"
	CmdScheduleToggle CommandType = "scheduleToggle"
)

// Request represents a client request
type Request struct {
	Cmd  CommandType     `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response represents a server response
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// PlayRequest is the data for a play command
type PlayRequest struct {
	URI string `json:"uri"`
}

// SeekRequest is the data for a seek command
type SeekRequest struct {
	Position int64 `json:"position"` // milliseconds
}

// VolumeRequest is the data for a volume command
type VolumeRequest struct {
	Level float64 `json:"level"` // 0.0 - 1.0
}

// SetShuffleRequest is the data for a setShuffle command
type SetShuffleRequest struct {
	Enabled bool `json:"enabled"`
}

// QueueMoveRequest is the data for a queueMove command
type QueueMoveRequest struct {
	FromIndex int `json:"fromIndex"`
	ToIndex   int `json:"toIndex"`
}

// QueueRemoveRequest is the data for a queueRemove command
type QueueRemoveRequest struct {
	Index int `json:"index"`
}

// StatusResponse is the response to a status command
type StatusResponse struct {
	AttachState string  `json:"attachState"`
	State       string  `json:"state"` // "playing", "paused", "stopped"
	URI         string  `json:"uri,omitempty"`
	Title       string  `json:"title,omitempty"`
	Artist      string  `json:"artist,omitempty"`
	Album       string  `json:"album,omitempty"`
	Position    int64   `json:"position"`
	Duration    int64   `json:"duration"`
	Volume      float64 `json:"volume"`
	QueueSize   int     `json:"queueSize"`
	RepeatMode  string  `json:"repeatMode"` // "off", "one", "all"
	Shuffle     bool    `json:"shuffle"`
	LoopPhase   int     `json:"loopPhase"`
	LoopStart   int64   `json:"loopStart,omitempty"`
	LoopEnd     int64   `json:"loopEnd,omitempty"`
}

// ScheduleEntryPayload carries a scheduled entry across the wire
type ScheduleEntryPayload struct {
	ID            int64    `json:"id,omitempty"`
	TrackURI      string   `json:"trackUri"`
	TrackLabel    string   `json:"trackLabel,omitempty"`
	Hour          int      `json:"hour"`
	Minute        int      `json:"minute"`
	Enabled       bool     `json:"enabled"`
	TargetVolume  float64  `json:"targetVolume"`
	RepeatDays    []string `json:"repeatDays,omitempty"`
	SnoozeEnabled bool     `json:"snoozeEnabled,omitempty"`
	Label         string   `json:"label,omitempty"`
	NextFire      int64    `json:"nextFire,omitempty"` // Unix millis, 0 when disarmed
}

// ScheduleListResponse is the response to a scheduleList command
type ScheduleListResponse struct {
	Entries []ScheduleEntryPayload `json:"entries"`
}

// ScheduleIDRequest addresses a single entry
type ScheduleIDRequest struct {
	ID int64 `json:"id"`
}

// ScheduleToggleRequest is the data for a scheduleToggle command
type ScheduleToggleRequest struct {
	ID      int64 `json:"id"`
	Enabled bool  `json:"enabled"`
}

// ConfigRequest is the data for a setConfig command. Nil fields are left
// unchanged.
type ConfigRequest struct {
	LibraryPaths          *[]string `json:"libraryPaths,omitempty"`
	SampleRate            *int      `json:"sampleRate,omitempty"`
	DefaultVolume         *float64  `json:"defaultVolume,omitempty"`
	MinDurationMillis     *int64    `json:"minDurationMillis,omitempty"`
	ExcludePathSubstrings *[]string `json:"excludePathSubstrings,omitempty"`
	ExactTimers           *bool     `json:"exactTimers,omitempty"`
}

// ConfigResponse is the response to a getConfig command
type ConfigResponse struct {
	ConfigPath            string   `json:"configPath"`
	LibraryPaths          []string `json:"libraryPaths"`
	SampleRate            int      `json:"sampleRate"`
	DefaultVolume         float64  `json:"defaultVolume"`
	MinDurationMillis     int64    `json:"minDurationMillis"`
	ExcludePathSubstrings []string `json:"excludePathSubstrings"`
	ExactTimers           bool     `json:"exactTimers"`
}

// ABLoopResponse reports the loop state after an abLoop toggle
type ABLoopResponse struct {
	Phase int   `json:"phase"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// EncodeRequest encodes a request to JSON
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeRequest decodes a request from JSON
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response to JSON
func EncodeResponse(resp *Response) ([]byte, error) {
	return json.Marshal(resp)
}

// DecodeResponse decodes a response from JSON
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// NewSuccessResponse creates a successful response
func NewSuccessResponse(data interface{}) (*Response, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, err
		}
	}
	return &Response{
		Success: true,
		Data:    rawData,
	}, nil
}

// NewErrorResponse creates an error response
func NewErrorResponse(err string) *Response {
	return &Response{
		Success: false,
		Error:   err,
	}
}
