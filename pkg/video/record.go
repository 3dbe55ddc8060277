// Package video defines the per-video metadata record, the per-item fetch
// error, and the outcome type produced by fetch backends.
package video

import (
	"encoding/json"
	"fmt"
)

// Unknown is the placeholder stored for every field a backend could not determine.
const Unknown = "Unknown"

// Field names a metadata attribute of a Record.
type Field string

// Record fields. Every Record carries all of them.
const (
	FieldTitle           Field = "title"
	FieldViewCount       Field = "view_count"
	FieldLikeCount       Field = "like_count"
	FieldCommentCount    Field = "comment_count"
	FieldUploadDate      Field = "upload_date"
	FieldPublishedAt     Field = "published_at"
	FieldChannelID       Field = "channel_id"
	FieldChannelName     Field = "channel_name"
	FieldURL             Field = "url"
	FieldDurationSeconds Field = "duration_seconds"
	FieldThumbnailURL    Field = "thumbnail_url"
	FieldLanguageCode    Field = "language_code"
	FieldLanguageName    Field = "language_name"
	FieldCountry         Field = "country"
	FieldShareCount      Field = "share_count"
	FieldDislikeCount    Field = "dislike_count"
	FieldSource          Field = "source"
)

// Fields lists the record schema in output order.
var Fields = []Field{
	FieldTitle,
	FieldViewCount,
	FieldLikeCount,
	FieldCommentCount,
	FieldUploadDate,
	FieldPublishedAt,
	FieldChannelID,
	FieldChannelName,
	FieldURL,
	FieldDurationSeconds,
	FieldThumbnailURL,
	FieldLanguageCode,
	FieldLanguageName,
	FieldCountry,
	FieldShareCount,
	FieldDislikeCount,
	FieldSource,
}

// Record is the metadata harvested for one video.
// The schema is stable: fields a backend cannot provide hold Unknown.
type Record struct {
	VideoID string
	fields  map[Field]string
}

// NewRecord returns a record for videoID with every field set to Unknown.
func NewRecord(videoID string) Record {
	fields := make(map[Field]string, len(Fields))
	for _, f := range Fields {
		fields[f] = Unknown
	}
	return Record{VideoID: videoID, fields: fields}
}

// Set stores value for f. Empty values are normalized to Unknown.
func (r *Record) Set(f Field, value string) {
	if r.fields == nil {
		*r = NewRecord(r.VideoID)
	}
	if value == "" {
		value = Unknown
	}
	r.fields[f] = value
}

// Get returns the value of f, or Unknown when it was never set.
func (r Record) Get(f Field) string {
	if v, ok := r.fields[f]; ok {
		return v
	}
	return Unknown
}

// IsKnown reports whether f holds a real value.
func (r Record) IsKnown(f Field) bool {
	return r.Get(f) != Unknown
}

// Clone returns a deep copy so callers can hand records out without sharing maps.
func (r Record) Clone() Record {
	out := NewRecord(r.VideoID)
	for k, v := range r.fields {
		out.fields[k] = v
	}
	return out
}

// Values returns the field values in Fields order, prefixed by the video id.
func (r Record) Values() []string {
	out := make([]string, 0, len(Fields)+1)
	out = append(out, r.VideoID)
	for _, f := range Fields {
		out = append(out, r.Get(f))
	}
	return out
}

// Header returns the column names matching Values.
func Header() []string {
	out := make([]string, 0, len(Fields)+1)
	out = append(out, "video_id")
	for _, f := range Fields {
		out = append(out, string(f))
	}
	return out
}

// MarshalJSON renders the record as a flat object.
func (r Record) MarshalJSON() ([]byte, error) {
	m := make(map[string]string, len(Fields)+1)
	for _, f := range Fields {
		m[string(f)] = r.Get(f)
	}
	m["video_id"] = r.VideoID
	return json.Marshal(m)
}

// UnmarshalJSON accepts the flat object produced by MarshalJSON.
// Missing fields are filled with Unknown; unknown keys are ignored.
func (r *Record) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	id, ok := m["video_id"]
	if !ok || id == "" {
		return fmt.Errorf("decode record: missing video_id")
	}
	*r = NewRecord(id)
	for _, f := range Fields {
		if v, ok := m[string(f)]; ok {
			r.Set(f, v)
		}
	}
	return nil
}
