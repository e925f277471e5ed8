package vault

import "errors"

var (
	ErrRecordNotFound        = errors.New("record not found")
	ErrStorageFolderNotFound = errors.New("storage folder not found")
	ErrNoFileInFolder        = errors.New("no file in storage folder")
	ErrCopy                  = errors.New("copy failed")
	ErrSourceNotFound        = errors.New("source file not found")
	ErrInvalidArtifact       = errors.New("invalid artifact")
)
