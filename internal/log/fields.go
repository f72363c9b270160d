// SPDX-License-Identifier: MIT

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRunID     = "run_id"
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldMode      = "mode"

	// Classifier fields
	FieldLevel   = "hierarchy_level"
	FieldLabel   = "label"
	FieldParent  = "parent"
	FieldSamples = "samples"
	FieldGenes   = "genes"

	// Path fields
	FieldPath        = "path"
	FieldDestination = "destination"
	FieldModelPath   = "model_path"
)
