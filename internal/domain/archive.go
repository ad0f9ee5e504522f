package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordTimeLayout formats the human readable completion time kept on archives.
const RecordTimeLayout = "2006-01-02 15:04"

// ArchivedRecord is the immutable snapshot written by a successful submit.
type ArchivedRecord struct {
	ID            string         `json:"id"`
	TaskID        string         `json:"task_id"`
	Session       string         `json:"Session"`
	Label         string         `json:"Label"`
	Number        int64          `json:"Number"`
	SKU           string         `json:"SKU"`
	URL           string         `json:"URL"`
	Price         float64        `json:"Price"`
	Title         string         `json:"Title"`
	Note          string         `json:"Note"`
	Description   map[string]any `json:"Description"`
	Location      string         `json:"Location"`
	ProductImages []string       `json:"Product_image"`
	CoverImage    string         `json:"Cover_image"`
	ImageCount    int            `json:"Image_count"`
	BatchCode     string         `json:"Batch_code"`
	QA            string         `json:"QA"`
	QATime        string         `json:"QA_time"`
	Recorder      string         `json:"Recorder"`
	RecordTime    string         `json:"Record_time"`
	CompletedBy   string         `json:"completed_by"`
	CompletedAt   time.Time      `json:"completed_at"`
}

// NewArchivedRecord builds the archive snapshot for a validated submission.
// The cover image is the first submitted image, empty when there are none.
// RecordTime is completedAt rendered in loc.
func NewArchivedRecord(sub *Submission, completedBy string, completedAt time.Time, loc *time.Location) *ArchivedRecord {
	if loc == nil {
		loc = time.UTC
	}
	images := append([]string{}, sub.ImageURLs...)
	cover := ""
	if len(images) > 0 {
		cover = images[0]
	}
	var number int64
	if sub.SequenceKey != nil {
		number = *sub.SequenceKey
	}

	return &ArchivedRecord{
		ID:            uuid.NewString(),
		TaskID:        sub.TaskID,
		Session:       deref(sub.GroupKey),
		Label:         deref(sub.Label),
		Number:        number,
		SKU:           deref(sub.SKU),
		URL:           deref(sub.URL),
		Price:         sub.Price,
		Title:         deref(sub.Title),
		Note:          deref(sub.Note),
		Description:   sub.Description,
		Location:      deref(sub.Location),
		ProductImages: images,
		CoverImage:    cover,
		ImageCount:    len(images),
		BatchCode:     deref(sub.BatchCode),
		QA:            deref(sub.QA),
		QATime:        deref(sub.QATime),
		Recorder:      deref(sub.Recorder),
		RecordTime:    completedAt.In(loc).Format(RecordTimeLayout),
		CompletedBy:   completedBy,
		CompletedAt:   completedAt.UTC(),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
