package rag

// AskRequest represents a question to answer from the ingested documents.
type AskRequest struct {
	// Query is the user's question.
	Query string `json:"query"`
	// Filename optionally restricts retrieval and conversation history to one ingested file.
	Filename string `json:"filename,omitempty"`
}

// Source identifies a chunk that was given to the model as context.
type Source struct {
	// Filename is the uploaded file the chunk came from.
	Filename string `json:"filename"`
	// ChunkIndex is the chunk's position within the file.
	ChunkIndex int `json:"chunk_index"`
	// Score is the similarity between the chunk and the query, higher is closer.
	Score float32 `json:"score"`
}

// AskResponse represents the answer to a question.
type AskResponse struct {
	// Answer is the generated answer, or NoContextAnswer when nothing was retrieved.
	Answer string `json:"answer"`
	// Sources are the retrieved chunks, best match first.
	Sources []Source `json:"sources"`
}
