package models

// Chunk is a bounded slice of the raw text of one processing batch.
// Start and End are rune offsets into that text.
type Chunk struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

// Answer is the outcome of one question/answer cycle.
type Answer struct {
	Question string
	Query    string
	Content  string
	Sources  []Chunk
}
