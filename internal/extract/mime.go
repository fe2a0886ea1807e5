package extract

import "mime"

var knownMimeTypes = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".json": "application/json",
	".csv":  "text/csv",
	".xls":  "application/vnd.ms-excel",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pdf":  "application/pdf",
}

// MimeType guesses a content type from the file extension. It returns "" when unknown.
func MimeType(fileName string) string {
	ext := Extension(fileName)
	if mt, ok := knownMimeTypes[ext]; ok {
		return mt
	}
	if ext == "" {
		return ""
	}
	return mime.TypeByExtension(ext)
}
