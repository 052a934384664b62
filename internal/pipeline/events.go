package pipeline

import "time"

// EventType represents the type of progress event.
type EventType string

const (
	EventRunStart       EventType = "run_start"
	EventFolderStart    EventType = "folder_start"
	EventImageUploaded  EventType = "image_uploaded"
	EventImageFailed    EventType = "image_failed"
	EventFolderComplete EventType = "folder_complete"
	EventFolderSkipped  EventType = "folder_skipped"
	EventRunComplete    EventType = "run_complete"
)

// Event is emitted by the coordinator while the run progresses. Consumers
// drive progress bars off these; dropping them changes nothing about the run.
type Event struct {
	Type      EventType
	Folder    string // raw folder name, set for folder/image events
	Image     string // image filename, set for image events
	Total     int    // run_start: folder count; folder_start: eligible image count
	Timestamp time.Time
}

// emit sends an event without ever blocking the pipeline. The events channel
// is buffered; a slow or absent consumer just loses events.
func (c *Coordinator) emit(evt Event) {
	if c.events == nil {
		return
	}
	evt.Timestamp = time.Now()
	select {
	case c.events <- evt:
	default:
	}
}
