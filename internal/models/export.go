package models

type ExportFormat string

const (
	FormatStructured  ExportFormat = "structured"
	FormatTabular     ExportFormat = "tabular"
	FormatSpreadsheet ExportFormat = "spreadsheet"
)

type ExportOptions struct {
	Format            ExportFormat `json:"format"`
	IncludeTranscript bool         `json:"include_transcript"`
	IncludeSentiment  bool         `json:"include_sentiment"`
	IncludeWordTiming bool         `json:"include_word_timing"`
}

type Report struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Filename string `json:"filename"`

	// StoredPath is set when the report was archived to object storage.
	StoredPath  string `json:"stored_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}
