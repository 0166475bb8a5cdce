package scribe

// Wire messages for the realtime scribe WebSocket. The service owns this
// contract; unknown inbound message types must be tolerated.

// Inbound message types.
const (
	typeSessionStarted       = "session_started"
	typePartialTranscript    = "partial_transcript"
	typeCommittedTranscript  = "committed_transcript"
	typeCommittedWithTimings = "committed_transcript_with_timestamps"
)

// inputAudioChunk is the outbound audio message. Commit stays false;
// segmentation is delegated to the service's voice activity detection.
type inputAudioChunk struct {
	MessageType string `json:"message_type"`
	AudioBase64 string `json:"audio_base_64"`
	Commit      bool   `json:"commit"`
	SampleRate  int    `json:"sample_rate,omitempty"`
}

// serviceEvent is the superset of fields the service sends. Events are
// dispatched on MessageType; fields irrelevant to a given type stay zero.
type serviceEvent struct {
	MessageType string `json:"message_type"`
	SessionID   string `json:"session_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// errorText picks the most descriptive field of an error-tagged event.
func (e *serviceEvent) errorText() string {
	switch {
	case e.Message != "":
		return e.Message
	case e.Error != "":
		return e.Error
	case e.Text != "":
		return e.Text
	default:
		return e.MessageType
	}
}
