package tools

func hints(readOnly, destructive, idempotent bool) map[string]bool {
	return map[string]bool{
		"readOnlyHint":    readOnly,
		"destructiveHint": destructive,
		"idempotentHint":  idempotent,
		"openWorldHint":   false,
	}
}

func ReadOnlyAnnotations() map[string]bool {
	return hints(true, false, true)
}

// DestructiveAnnotations fits deletes: repeating one removes nothing more.
func DestructiveAnnotations() map[string]bool {
	return hints(false, true, true)
}

func NonIdempotentWriteAnnotations() map[string]bool {
	return hints(false, false, false)
}

// OpenWorld marks a tool that talks to the remote memory service.
func OpenWorld(annotations map[string]bool) map[string]bool {
	annotations["openWorldHint"] = true
	return annotations
}
