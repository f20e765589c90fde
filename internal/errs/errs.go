// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package errs defines the sentinel error kinds used across the scanner
// pipeline so callers can distinguish recoverable conditions with
// errors.Is instead of string matching.
package errs

import "errors"

var (
	// ErrUnreadableArtifact marks a class file or archive member that could
	// not be opened or whose bytes are not a valid class file. Scanning
	// continues past it; it is recorded and does not abort the run.
	ErrUnreadableArtifact = errors.New("unreadable class artifact")

	// ErrUnresolvedReference marks a class, method, or field reference that
	// points outside the set of decoded classes (for example an external
	// library symbol). The reference is kept as a dangling edge rather than
	// causing a failure.
	ErrUnresolvedReference = errors.New("unresolved symbol reference")

	// ErrConfigMissing marks a run with no leaf-type configuration supplied.
	// analyze.Analyze logs it as a warning and proceeds with an empty
	// configuration.
	ErrConfigMissing = errors.New("configuration missing")

	// ErrInvalidProjectPath marks a project root that cannot be stat'ed
	// (for a reason other than not existing) or whose tree walk fails at the
	// root. A missing or empty root is not an error: the scan is empty.
	ErrInvalidProjectPath = errors.New("invalid project path")
)
