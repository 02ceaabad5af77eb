package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// StringList stores tags as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value any) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("unsupported type for StringList: %T", value)
	}
	return json.Unmarshal(data, l)
}

// MediaRecord is one archived photo or video. Records are created
// unprocessed at ingestion time; the enrichment worker is the only writer
// of Tags, Description and Processed.
type MediaRecord struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	MediaType   MediaType  `gorm:"index" json:"media_type"`
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`
	FilePath    string     `gorm:"unique" json:"file_path"`
	Tags        StringList `gorm:"type:jsonb" json:"tags"`
	Description *string    `json:"description,omitempty"`
	Processed   bool       `gorm:"index;default:false" json:"processed"`
	Attempts    int        `gorm:"default:0" json:"attempts"`
	AudioID     *string    `gorm:"index" json:"audio_id,omitempty"`
	Latitude    *float64   `json:"latitude,omitempty"`
	Longitude   *float64   `json:"longitude,omitempty"`
}

func (MediaRecord) TableName() string { return "media_records" }

// HasLocation reports whether the record carries a GPS pair.
func (m *MediaRecord) HasLocation() bool {
	return m.Latitude != nil && m.Longitude != nil
}
