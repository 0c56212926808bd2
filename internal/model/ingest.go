package model

// IngestEnvelope carries one raw line with source metadata.
// It is the transport contract between relay inputs and processing.
type IngestEnvelope struct {
	Source string
	Remote string
	Line   string
}
