package dto

// BookTitleRequest is the body of /api/get_quotes and both mind-map endpoints.
type BookTitleRequest struct {
	BookTitle string `json:"book_title"`
}

// QuotesResponse is returned by /api/get_quotes.
type QuotesResponse struct {
	Quotes   []string `json:"quotes"`
	Message  string   `json:"message"`
	Degraded bool     `json:"degraded,omitempty"`
}

// PosterRequest is the body of /api/generate_poster. GenerateImage
// defaults to true when omitted.
type PosterRequest struct {
	BookTitle      string   `json:"book_title"`
	SelectedQuotes []string `json:"selected_quotes"`
	GenerateImage  *bool    `json:"generate_image,omitempty"`
}

// WantsImage resolves the GenerateImage default.
func (r PosterRequest) WantsImage() bool {
	return r.GenerateImage == nil || *r.GenerateImage
}

// PosterResponse is returned by /api/generate_poster.
type PosterResponse struct {
	PosterURL   string `json:"poster_url"`
	ImageURL    string `json:"image_url"`
	CoreThought string `json:"core_thought"`
	Message     string `json:"message"`
	Degraded    bool   `json:"degraded,omitempty"`
}

// MindmapResponse is returned by /api/generate_mindmap.
type MindmapResponse struct {
	PDFURL   string `json:"pdf_url"`
	Message  string `json:"message"`
	Degraded bool   `json:"degraded,omitempty"`
}
