package config

const (
	// Database errors
	ErrInitializeDatabaseFmt = "Failed to initialize database: %v"
	ErrInitializingRecords   = "Error initializing records"
	ErrReloadingRecords      = "Error reloading records"

	// Media errors
	ErrCreateMediaStoreFmt = "Failed to create media store: %v"

	// Config errors
	ErrLoadConfigFmt         = "Failed to load config: %v"
	ErrWriteConfigContentFmt = "Failed to write config content: %v"

	// Editor errors
	ErrRevalidation       = "Revalidation failed"
	ErrDeleteReplacedFile = "Failed to delete replaced image"
	ErrReleasePreview     = "Failed to release preview"
)
