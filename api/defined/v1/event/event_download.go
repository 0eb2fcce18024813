package event

import "time"

const (
	// DownloadNotificationKey carries user facing download transitions.
	DownloadNotificationKey Kind = "download.notification"
	// DownloadActivityKey carries operational transitions and periodic progress.
	DownloadActivityKey Kind = "download.activity"
)

var (
	DownloadNotification = NewTopicKey[*DownloadStatus](DownloadNotificationKey)
	DownloadActivity     = NewTopicKey[*DownloadStatus](DownloadActivityKey)
)

// DownloadState is the lifecycle state a download reports.
type DownloadState string

const (
	StateStarted   DownloadState = "STARTED"
	StateRetrying  DownloadState = "RETRYING"
	StateComplete  DownloadState = "COMPLETE"
	StateCancelled DownloadState = "CANCELLED"
	StateFailed    DownloadState = "FAILED"
	// StateProgress is a periodic report that does not change the state.
	StateProgress DownloadState = "PROGRESS"
)

// Terminal reports whether no further transition follows s.
func (s DownloadState) Terminal() bool {
	switch s {
	case StateComplete, StateCancelled, StateFailed:
		return true
	}
	return false
}

// DownloadStatus is one download state transition.
type DownloadStatus struct {
	DownloadID       string        `json:"download_id"`
	State            DownloadState `json:"state"`
	Detail           string        `json:"detail,omitempty"`
	BytesTransferred int64         `json:"bytes_transferred"`
	TotalBytes       int64         `json:"total_bytes"`
	BytesPerSecond   int64         `json:"bytes_per_second"`
	FileName         string        `json:"file_name"`
	Key              string        `json:"key"`
	SourceID         string        `json:"source_id"`
	ResourceID       string        `json:"resource_id"`
	Timestamp        time.Time     `json:"timestamp"`
}
