// ABOUTME: Text message type definitions for the roomstream wire protocol
// ABOUTME: Defines the JSON envelope and every client<->server payload shape per spec
package wire

// Message is the top-level wrapper for all text messages: a JSON
// object `{"type": <string>, "payload": <object>}`.
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Text message type strings, client -> server.
const (
	TypePlayerHello      = "player/hello"
	TypePlayerTime       = "player/time"
	TypePlayerState      = "player/state"
	TypeStreamCommand    = "stream/command"
	TypeGroupJoin        = "group/join"
	TypeGroupUnjoin      = "group/unjoin"
	TypeGroupGetList     = "group/get-list"
)

// Text message type strings, server -> client.
const (
	TypeSourceHello      = "source/hello"
	TypeSourceTime       = "source/time"
	TypeSessionStart     = "session/start"
	TypeSessionEnd       = "session/end"
	TypeMetadataUpdate   = "metadata/update"
	TypeGroupList        = "group/list"
)

// PlayerInfo is the capability descriptor a receiver announces in
// player/hello.
type PlayerInfo struct {
	PlayerID          string   `json:"player_id"`
	Name              string   `json:"name"`
	Role              string   `json:"role"`
	BufferCapacity    int      `json:"buffer_capacity"`
	SupportedCodecs   []string `json:"supported_codecs"`
	SupportedChannels []int    `json:"supported_channels"`
	SupportedRates    []int    `json:"supported_sample_rates"`
	SupportedDepths   []int    `json:"supported_bit_depths"`
	SupportedStreams  []string `json:"supported_stream_types"`
	SupportedArt      []string `json:"supported_picture_formats"`
	DisplayWidth      int      `json:"display_width,omitempty"`
	DisplayHeight     int      `json:"display_height,omitempty"`
}

// ServerInfo identifies a server instance, sent as source/hello.
type ServerInfo struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
}

// PlayerTimePayload is player/time: { player_transmitted }.
type PlayerTimePayload struct {
	PlayerTransmitted int64 `json:"player_transmitted"`
}

// SourceTimePayload is source/time.
type SourceTimePayload struct {
	PlayerTransmitted int64 `json:"player_transmitted"`
	SourceReceived    int64 `json:"source_received"`
	SourceTransmitted int64 `json:"source_transmitted"`
}

// PlayerState is the receiver-reported playback state, sent via
// player/state.
type PlayerState struct {
	State  string `json:"state"`
	Volume int    `json:"volume,omitempty"`
	Muted  bool   `json:"muted,omitempty"`
}

// StreamCommandPayload is stream/command: play/pause/stop/seek/volume.
type StreamCommandPayload struct {
	Command string  `json:"command"`
	Volume  int     `json:"volume,omitempty"`
	Seek    float64 `json:"seek,omitempty"`
}

// GroupJoinPayload is group/join.
type GroupJoinPayload struct {
	GroupID string `json:"groupId"`
}

// SessionInfo describes the parameters of an active session, sent as
// session/start.
type SessionInfo struct {
	SessionID   string `json:"sessionId"`
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	OriginUs    int64  `json:"now"`
	CodecHeader []byte `json:"codec_header,omitempty"`
}

// SessionEndPayload is session/end: { sessionId }.
type SessionEndPayload struct {
	SessionID string `json:"sessionId"`
}

// ProgressState is nested in Metadata updates.
type ProgressState struct {
	TrackProgress int `json:"track_progress"`
	TrackDuration int `json:"track_duration"`
	PlaybackSpeed int `json:"playback_speed"`
}

// Metadata is sticky display state. Pointer fields distinguish "not
// present in this delta" from zero-value content; a nil field is
// omitted from the wire payload and, on the receiver, left untouched
// in the cached value during a merge.
type Metadata struct {
	Title           *string        `json:"title,omitempty"`
	Artist          *string        `json:"artist,omitempty"`
	Album           *string        `json:"album,omitempty"`
	Year            *int           `json:"year,omitempty"`
	Track           *int           `json:"track,omitempty"`
	GroupMembers    []string       `json:"group_members,omitempty"`
	SupportCommands []string       `json:"support_commands,omitempty"`
	Repeat          *string        `json:"repeat,omitempty"`
	Shuffle         *bool          `json:"shuffle,omitempty"`
	Progress        *ProgressState `json:"progress,omitempty"`
}

// Clone returns a deep copy so a cached Metadata can be mutated by a
// merge without aliasing the caller's struct.
func (m Metadata) Clone() Metadata {
	out := m
	if m.Title != nil {
		v := *m.Title
		out.Title = &v
	}
	if m.Artist != nil {
		v := *m.Artist
		out.Artist = &v
	}
	if m.Album != nil {
		v := *m.Album
		out.Album = &v
	}
	if m.Year != nil {
		v := *m.Year
		out.Year = &v
	}
	if m.Track != nil {
		v := *m.Track
		out.Track = &v
	}
	if m.Repeat != nil {
		v := *m.Repeat
		out.Repeat = &v
	}
	if m.Shuffle != nil {
		v := *m.Shuffle
		out.Shuffle = &v
	}
	if m.GroupMembers != nil {
		out.GroupMembers = append([]string(nil), m.GroupMembers...)
	}
	if m.SupportCommands != nil {
		out.SupportCommands = append([]string(nil), m.SupportCommands...)
	}
	if m.Progress != nil {
		v := *m.Progress
		out.Progress = &v
	}
	return out
}

// GroupListEntry is one element of the group/list payload.
type GroupListEntry struct {
	GroupID string `json:"groupId"`
	State   string `json:"state"` // "idle", "playing", "paused" (paused is never produced, pause semantics are unspecified)
}

// GroupListPayload is group/list: { groups: [...] }.
type GroupListPayload struct {
	Groups []GroupListEntry `json:"groups"`
}
