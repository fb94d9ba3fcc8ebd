package pipeline

// messages.go maps internal pipeline errors to user-facing messages.
//
// # Error Codes Reference
//
// When users encounter errors, they can quote the error code to support
// staff for faster diagnosis. Codes are grouped by stage:
//
//	ENT001 - Unsupported source: the upload arrived in an unrecognized shape
//	ENT002 - Missing payload: no file was attached to the request
//	ENT003 - Invalid filename: the upload's filename is not acceptable
//	SIZ001 - Size violation: the file is larger than the configured limit
//	SPF001 - Spoofed type: the file content does not match an accepted type
//	STR001 - Structural validation: the file is damaged or malformed
//	DEC001 - Decode failure: the file could not be read as its detected type
//	POL001 - Policy violation: the file was valid but rejected by a rule
//	STO001 - Storage failure: the file could not be saved
//	GEN001 - Unknown error
import (
	"errors"

	"github.com/filevet/filevet/internal/storage"
)

// UserMessage is a user-friendly error with a stable support code.
type UserMessage struct {
	Code    string // Stable code for support reference
	Message string // What happened, in plain language
	Action  string // What the user can do about it
}

// MapError converts a pipeline error into a UserMessage. Technical
// detail stays server-side in logs; clients see only the mapped text.
func MapError(err error) UserMessage {
	switch {
	case errors.Is(err, ErrUnsupportedSource):
		return UserMessage{
			Code:    "ENT001",
			Message: "The upload arrived in a format the server does not recognize.",
			Action:  "Upload the file through the standard file form.",
		}
	case errors.Is(err, ErrMissingPayload):
		return UserMessage{
			Code:    "ENT002",
			Message: "No file was attached to the request.",
			Action:  "Select a file and try again.",
		}
	case errors.Is(err, storage.ErrInvalidName), errors.Is(err, storage.ErrPathTraversal):
		return UserMessage{
			Code:    "ENT003",
			Message: "The filename contains characters that are not allowed.",
			Action:  "Rename the file without path separators or control characters and try again.",
		}
	}

	var sizeErr *SizeError
	if errors.As(err, &sizeErr) {
		return UserMessage{
			Code:    "SIZ001",
			Message: "The file is larger than the allowed maximum.",
			Action:  "Reduce the file size and upload again.",
		}
	}

	var spoofErr *SpoofError
	if errors.As(err, &spoofErr) {
		return UserMessage{
			Code:    "SPF001",
			Message: "The file content does not match an accepted file type.",
			Action:  "Upload a file of an accepted type. Renaming a file does not change its type.",
		}
	}

	var structErr *StructureError
	if errors.As(err, &structErr) {
		return UserMessage{
			Code:    "STR001",
			Message: "The file appears to be damaged or malformed.",
			Action:  "Re-export the file from its original application and upload again.",
		}
	}

	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return UserMessage{
			Code:    "DEC001",
			Message: "The file could not be read as its detected type.",
			Action:  "Verify the file opens correctly on your machine, then upload again.",
		}
	}

	var policyErr *PolicyError
	if errors.As(err, &policyErr) {
		return UserMessage{
			Code:    "POL001",
			Message: policyErr.Reason,
			Action:  "Adjust the file to meet the stated requirement and upload again.",
		}
	}

	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return UserMessage{
			Code:    "STO001",
			Message: "The file was accepted but could not be saved.",
			Action:  "Please try again in a few moments.",
		}
	}

	return UserMessage{
		Code:    "GEN001",
		Message: "An unexpected error occurred while processing the file.",
		Action:  "Please try again. If the problem persists, contact support with this code.",
	}
}
