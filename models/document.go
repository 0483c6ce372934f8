package models

// NormalizedDocument is the unit returned to the caller: cleaned text plus
// filtered image and figure metadata. Immutable once built.
type NormalizedDocument struct {
	// Title is the page title. May be empty.
	Title string `json:"title"`

	// Text is the whitespace-collapsed body text, with size-capped
	// structured-metadata blobs (JSON-LD, app state, OpenGraph) appended.
	Text string `json:"text"`

	// CharCount is the length of Text after normalization.
	CharCount int `json:"char_count"`

	// WordCount is the whitespace-split token count of Text.
	WordCount int `json:"word_count"`

	// Images is the document-ordered, deduplicated list of images that
	// survived the dimension and SVG filters.
	Images []ImageDescriptor `json:"images"`

	// Figures pairs caption text with the images scoped to each <figure>.
	Figures []FigureDescriptor `json:"figures"`
}

// ImageDescriptor describes a single content image with its URL resolved
// against the page base. An entry with an empty URL always has at least
// one source-set entry; neither ever references SVG.
type ImageDescriptor struct {
	// URL is the resolved absolute src. Empty when only srcset entries exist.
	URL string `json:"url,omitempty"`

	// Alt is the image alt text, whitespace-collapsed.
	Alt string `json:"alt,omitempty"`

	// Title is the image title attribute, whitespace-collapsed.
	Title string `json:"title,omitempty"`

	// Width and Height come from explicit attributes, falling back to
	// inline CSS pixel values. Zero when undeclared.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// SourceSet holds resolved srcset entries in declaration order.
	SourceSet []SourceSetEntry `json:"source_set,omitempty"`
}

// SourceSetEntry is one resolved srcset candidate.
type SourceSetEntry struct {
	URL string `json:"url"`

	// Descriptor is the raw size descriptor ("2x", "640w"). May be empty.
	Descriptor string `json:"descriptor,omitempty"`
}

// FigureDescriptor pairs a <figure> caption with the images inside it.
// The same filtering rules as top-level images apply to the scoped list.
type FigureDescriptor struct {
	Caption string            `json:"caption,omitempty"`
	Images  []ImageDescriptor `json:"images"`
}
