package types

// SettingsMessage is pushed to UI clients whenever the session changes.
type SettingsMessage struct {
	Type       string `json:"type"`
	Mode       string `json:"mode"`
	Label      string `json:"label"`
	Correction bool   `json:"correction"`
	Status     string `json:"status"`
}

// CaptureMessage reports the files written by a capture request.
type CaptureMessage struct {
	Type  string   `json:"type"`
	Files []string `json:"files,omitempty"`
	Error string   `json:"error,omitempty"`
}

// FrameMessage is a preview frame sent to UI clients as a binary message.
type FrameMessage struct {
	Seq  uint64
	JPEG []byte
}
