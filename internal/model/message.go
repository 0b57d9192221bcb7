package model

// MessagePayload is the content sent to every recipient of a campaign:
// plain text plus an optional media attachment referenced by path.
type MessagePayload struct {
	Text      string `json:"text"`
	MediaPath string `json:"media_path,omitempty"`
	MediaMime string `json:"media_mime,omitempty"`
}

func (p *MessagePayload) HasMedia() bool {
	return p.MediaPath != ""
}

// Release drops the media reference once a campaign is finished so the
// attachment can be cleaned up without dangling handles.
func (p *MessagePayload) Release() {
	p.MediaPath = ""
	p.MediaMime = ""
}
