package domain

// AssetReference locates a stored upload. Products hold only its URL.
type AssetReference struct {
	Filename    string `json:"filename"`
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}
