package editor

// State of an image field.
type State string

const (
	StatePersisted State = "persisted"
	StateStaged    State = "staged"
	StateUploading State = "uploading"
	StateRemoved   State = "removed"

	// Uploaded, but the save that would reference it failed.
	StateUnsaved State = "unsaved"
)
