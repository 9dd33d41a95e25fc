package dream

import "time"

// State is the pipeline state visible to clients.
type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// FailureKind classifies why the pipeline entered StateFailed.
type FailureKind string

const (
	FailureEmptyInput        FailureKind = "empty_input"
	FailureMissingCredential FailureKind = "missing_credential"
	FailureUpstream          FailureKind = "upstream"
	FailureNoPayload         FailureKind = "no_payload"
	FailureBlocked           FailureKind = "blocked"
)

// Failure is the single user-facing message carried by StateFailed.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// RecordView is a read-only copy of a Record for API consumers.
type RecordView struct {
	ID             string    `json:"id"`
	Transcription  string    `json:"transcription"`
	Interpretation string    `json:"interpretation"`
	ImagePending   bool      `json:"imagePending"`
	ImageReady     bool      `json:"imageReady"`
	ImageMIMEType  string    `json:"imageMimeType,omitempty"`
	ImageError     string    `json:"imageError,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Snapshot is an immutable view of the orchestrator at one version.
type Snapshot struct {
	Version         uint64      `json:"version"`
	State           State       `json:"state"`
	Failure         *Failure    `json:"failure,omitempty"`
	Record          *RecordView `json:"record,omitempty"`
	Conversation    bool        `json:"conversation"`
	NarrationCached bool        `json:"narrationCached"`
}
