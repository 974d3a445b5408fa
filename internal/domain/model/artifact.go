package model

// CapturedArtifact is one satellite's recording of one take. It is
// immutable once produced; identity is (OwnerPartID, CapturedAtMs).
type CapturedArtifact struct {
	Name         string
	OwnerPartID  string
	CapturedAtMs int64
	OffsetMs     int64
	MimeType     string
	Payload      []byte
}

// ID is the artifact identity used for settings keys and error reports.
func (a CapturedArtifact) ID() string {
	if a.Name != "" {
		return a.Name
	}
	return a.OwnerPartID
}

// BackingTrackVersion is one uploaded backing track.
type BackingTrackVersion struct {
	Name         string `json:"name"`
	URL          string `json:"url"`
	UploadedAtMs int64  `json:"uploadedAt"`
}

// Take groups artifacts captured within a short window of each other.
type Take struct {
	ID           int64                `json:"id"`
	CapturedAtMs int64                `json:"capturedAt"`
	Artifacts    []CapturedArtifact   `json:"-"`
	Parts        []string             `json:"parts"`
	Backing      *BackingTrackVersion `json:"backing,omitempty"`
}
