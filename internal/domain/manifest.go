package domain

type Style struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Prompt     string `json:"prompt"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// ContentManifest is the static content document published to object storage.
type ContentManifest struct {
	Version     int      `json:"version"`
	Styles      []Style  `json:"styles"`
	Suggestions []string `json:"suggestions"`
}

func (m *ContentManifest) Style(id string) (*Style, error) {
	for i := range m.Styles {
		if m.Styles[i].ID == id {
			return &m.Styles[i], nil
		}
	}
	return nil, ErrStyleNotFound
}
