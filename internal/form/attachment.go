package form

import "strings"

// FilePrefix is the multipart part-name prefix of attachments.
const FilePrefix = "files."

// PartName returns the multipart part name of a document key.
func PartName(key string) string {
	return FilePrefix + key
}

// KeyFromPart extracts the document key from a multipart part name.
func KeyFromPart(part string) (string, bool) {
	if !strings.HasPrefix(part, FilePrefix) {
		return "", false
	}
	key := strings.TrimPrefix(part, FilePrefix)
	return key, key != ""
}

// Attachment is the file chosen for one document slot. Uploads and files the
// operator staged earlier are both held under BlobID until submission.
type Attachment struct {
	Key         string `json:"key"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	BlobID      string `json:"blob_id,omitempty"`
}

// Local reports whether the attachment is staged for upload.
func (a *Attachment) Local() bool {
	return a != nil && a.BlobID != ""
}

// Attachments holds the chosen file per document key. A nil entry is an
// empty slot.
type Attachments map[string]*Attachment

// Set stores a for its key.
func (at Attachments) Set(a *Attachment) {
	at[a.Key] = a
}

// AllUploaded reports whether every non-optional document slot of the schema
// has a file. A schema without documents is always complete.
func (s Schema) AllUploaded(at Attachments) bool {
	return len(s.Missing(at)) == 0
}

// Missing returns the keys of non-optional slots without a file, in schema
// order.
func (s Schema) Missing(at Attachments) []string {
	var missing []string
	for _, slot := range s.Documents {
		if slot.Optional {
			continue
		}
		if at[slot.Key] == nil {
			missing = append(missing, slot.Key)
		}
	}
	return missing
}

// Submission is a validated add form ready to be sent.
type Submission struct {
	Fields      map[string]string `json:"fields"`
	Attachments []*Attachment     `json:"attachments,omitempty"`
}

// NewSubmission builds the submission of values and the local uploads in at,
// in schema slot order.
func (s Schema) NewSubmission(v Values, at Attachments) Submission {
	sub := Submission{Fields: s.Payload(v)}
	for _, slot := range s.Documents {
		if a := at[slot.Key]; a.Local() {
			sub.Attachments = append(sub.Attachments, a)
		}
	}
	return sub
}
