package utils

// ShortID truncates an opaque client id for log output
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}
