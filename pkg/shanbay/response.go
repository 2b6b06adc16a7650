package shanbay

import "fmt"

// apiPage is the envelope of every paginated collection endpoint.
type apiPage[T any] struct {
	Objects []T `json:"objects"`
	Total   int `json:"total"`
	IPP     int `json:"ipp"`
	Page    int `json:"page"`
}

// WordSummary is one entry of the saved-word collection.
type WordSummary struct {
	ID        string `json:"id"`
	Word      string `json:"word"`
	UpdatedAt string `json:"updated_at"`
}

// WordDetail is the full dictionary entry plus the user's recent activities.
type WordDetail struct {
	ID          string      `json:"id"`
	Word        string      `json:"word"`
	UpdatedAt   string      `json:"updated_at"`
	Sound       Sound       `json:"sound"`
	Definitions Definitions `json:"definitions"`
	Activities  []Activity  `json:"activities"`
}

// Sound holds phonetics and audio locations per accent.
type Sound struct {
	IPAUK       string   `json:"ipa_uk"`
	IPAUS       string   `json:"ipa_us"`
	AudioUKURLs []string `json:"audio_uk_urls"`
	AudioUSURLs []string `json:"audio_us_urls"`
}

// Definitions groups translated senses by language.
type Definitions struct {
	CN []Sense `json:"cn"`
}

// Sense is one part-of-speech + definition pair.
type Sense struct {
	POS string `json:"pos"`
	Def string `json:"def"`
}

// Activity records a word occurrence in one of the vendor's apps.
type Activity struct {
	AppName    string     `json:"app_name"`
	SourceName string     `json:"source_name"`
	CreatedAt  string     `json:"created_at"`
	Objective  *Objective `json:"objective"`
}

// Objective links an activity to the passage where the word was captured.
// BookCode is empty for news pieces.
type Objective struct {
	BookCode      string `json:"book_code"`
	ArticleCode   string `json:"article_code"`
	ParagraphCode string `json:"paragraph_code"`
	SentenceCode  string `json:"sentence_code"`
	Content       string `json:"content"`
}

type apiExample struct {
	ContentEN string `json:"content_en"`
	ContentCN string `json:"content_cn"`
}

type apiTranslation struct {
	Translation *string `json:"translation"`
}

// Article is the per-chapter (or per-news-piece) metadata.
type Article struct {
	ID      string `json:"id"`
	BookID  string `json:"book_id"`
	TitleCN string `json:"title_cn"`
	TitleEN string `json:"title_en"`
}

// Catalog is a book's static table of contents.
type Catalog struct {
	ID       string    `json:"id"`
	NameCN   string    `json:"name_cn"`
	NameEN   string    `json:"name_en"`
	Chapters []Chapter `json:"chapters"`
}

// Chapter is one catalog entry.
type Chapter struct {
	ID      string `json:"id"`
	TitleCN string `json:"title_cn"`
	TitleEN string `json:"title_en"`
}

func (d *WordDetail) validate() error {
	if d.ID == "" || d.Word == "" {
		return fmt.Errorf("%w: word detail without id or word", ErrMalformed)
	}
	return nil
}

func (a *Article) validate() error {
	if a.ID == "" {
		return fmt.Errorf("%w: article without id", ErrMalformed)
	}
	return nil
}
