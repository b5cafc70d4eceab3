package assettype

// IsBinaryContent reports whether data looks binary: a NUL byte within the first 8000 bytes.
// Binary-serialized assets carry no text reference tokens and are skipped by scans.
func IsBinaryContent(data []byte) bool {
	checkSize := min(len(data), 8000)
	for i := 0; i < checkSize; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}
