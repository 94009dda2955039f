package catalog

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type RemoteSupport string

const (
	RemoteYes RemoteSupport = "Yes"
	RemoteNo  RemoteSupport = "No"
)

type AdaptiveSupport string

const (
	AdaptiveYes     AdaptiveSupport = "Yes"
	AdaptiveNo      AdaptiveSupport = "No"
	AdaptiveUnknown AdaptiveSupport = "Unknown"
)

// DurationUnknown is reported in place of a duration that enrichment never found.
const DurationUnknown = "N/A"

// Record is a single assessment from the product catalog.
type Record struct {
	ID              string          `json:"id,omitempty" mapstructure:"id"`
	Name            string          `json:"name" mapstructure:"name"`
	URL             string          `json:"url" mapstructure:"url"`
	RemoteSupport   RemoteSupport   `json:"remote_support" mapstructure:"remote_support"`
	AdaptiveSupport AdaptiveSupport `json:"adaptive_support" mapstructure:"adaptive_support"`
	TestTypes       []string        `json:"test_types" mapstructure:"test_types"`
	// Duration is the approximate completion time in minutes, nil until enrichment finds it.
	Duration *int `json:"duration,omitempty" mapstructure:"duration"`
}

// RecordID derives the stable identifier of a record from its canonical URL.
func RecordID(url string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(url))).String()
}

// Document renders the text that gets embedded for the record.
// Queries are enhanced into the same shape, so keep both in sync.
func (r Record) Document() string {
	parts := make([]string, 0, len(r.TestTypes)+2)
	parts = append(parts, r.Name)
	parts = append(parts, r.TestTypes...)
	if r.Duration != nil {
		parts = append(parts, fmt.Sprintf("duration %d minutes", *r.Duration))
	}

	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// DurationValue returns the duration in minutes or DurationUnknown.
func (r Record) DurationValue() any {
	if r.Duration == nil {
		return DurationUnknown
	}
	return *r.Duration
}

// Documents renders every record, keeping the input order.
func Documents(records []Record) []string {
	docs := make([]string, len(records))
	for i, r := range records {
		docs[i] = r.Document()
	}
	return docs
}

// IDs returns the identifiers of records, keeping the input order.
func IDs(records []Record) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func (r *Record) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.URL = strings.TrimSpace(r.URL)

	if r.RemoteSupport == "" {
		r.RemoteSupport = RemoteNo
	}
	if r.AdaptiveSupport == "" {
		r.AdaptiveSupport = AdaptiveUnknown
	}
	if r.TestTypes == nil {
		r.TestTypes = []string{}
	}
	if r.ID == "" && r.URL != "" {
		r.ID = RecordID(r.URL)
	}
}
