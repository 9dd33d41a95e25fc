package dream

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

// Image holds synthesized image bytes. A zero Image means the image is still pending.
type Image struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mimeType"`
}

// Empty reports whether no image bytes are present.
func (i Image) Empty() bool {
	return len(i.Data) == 0
}

// Audio is a narration payload: raw little-endian 16-bit PCM plus the
// parameters the playback side needs to decode it.
type Audio struct {
	Data       []byte `json:"audio"`
	MIMEType   string `json:"mimeType"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// Record is the per-submission bundle of transcription, interpretation and image.
//
// Interpretation is fixed at construction. Image is filled at most once by the
// pipeline; ImageError is set instead when the pipeline keeps the record visible
// after a failed image call.
type Record struct {
	ID             string
	Transcription  string
	Interpretation string
	Image          Image
	ImageError     string
	CreatedAt      time.Time
}

// NewRecord creates a record for a successfully interpreted dream.
func NewRecord(transcription, interpretation string) *Record {
	return &Record{
		ID:             uuid.NewString(),
		Transcription:  transcription,
		Interpretation: interpretation,
		CreatedAt:      time.Now().UTC(),
	}
}

// ImagePending reports whether the image call has neither succeeded nor failed yet.
func (r *Record) ImagePending() bool {
	return r.Image.Empty() && r.ImageError == ""
}

// SetImage stores the generated image. Later calls are ignored.
func (r *Record) SetImage(img Image) bool {
	if !r.Image.Empty() || img.Empty() {
		return false
	}
	r.Image = Image{
		Data:     append([]byte(nil), img.Data...),
		MIMEType: img.MIMEType,
	}
	return true
}

// ImageReference renders the image as a data URI, or "" while pending.
func (r *Record) ImageReference() string {
	if r.Image.Empty() {
		return ""
	}
	mime := r.Image.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Image.Data)
}

// View returns the JSON-facing projection of the record without image bytes.
func (r *Record) View() *RecordView {
	return &RecordView{
		ID:             r.ID,
		Transcription:  r.Transcription,
		Interpretation: r.Interpretation,
		ImagePending:   r.ImagePending(),
		ImageReady:     !r.Image.Empty(),
		ImageMIMEType:  r.Image.MIMEType,
		ImageError:     r.ImageError,
		CreatedAt:      r.CreatedAt,
	}
}
