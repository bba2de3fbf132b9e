package question

import "strings"

// ImageAsset is an image retained for a question, ready to be written out.
type ImageAsset struct {
	// Name is the file name without extension: the question's source
	// identifier without brackets, suffixed with _1, _2... for the second and
	// later images of the same question.
	Name   string `json:"name"`
	Format string `json:"format"` // "png", "jpeg", ...
	Page   int    `json:"page"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

// FileName returns Name with the extension for Format.
func (a ImageAsset) FileName() string {
	ext := a.Format
	switch ext {
	case "":
		ext = "png"
	case "jpeg":
		ext = "jpg"
	}
	return a.Name + "." + ext
}

// Row is one emitted question.
type Row struct {
	ID            int          `json:"id"`
	SourceID      string       `json:"id_questao_origem"`
	Theme         string       `json:"tema"`
	Statement     string       `json:"enunciado"`
	A             string       `json:"alternativa_a"`
	B             string       `json:"alternativa_b"`
	C             string       `json:"alternativa_c"`
	D             string       `json:"alternativa_d"`
	CorrectAnswer string       `json:"resposta_correta"`
	HasImage      bool         `json:"ha_imagem"`
	Comment       string       `json:"comentario"`
	ExamNumber    int          `json:"simulado_numero"`
	LocalNumber   int          `json:"numero_local"`
	Images        []ImageAsset `json:"imagens,omitempty"`
}

// Text joins the statement and the four choices, the input used for theme
// classification and fingerprints.
func (r Row) Text() string {
	return JoinText(r.Statement, r.A, r.B, r.C, r.D)
}

// JoinText joins non-empty parts with single spaces.
func JoinText(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

// StripBrackets removes the surrounding brackets of a source identifier.
// Path separators are replaced so the result is a plain file name.
func StripBrackets(id string) string {
	id = strings.TrimSuffix(strings.TrimPrefix(id, "["), "]")
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, id)
}

// StorageKey sanitises an image name for object stores that reject
// brackets and hyphens: "[CEA-07]_1" becomes "CEA_07_1".
func StorageKey(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '[', ']':
			return -1
		case '-', '/', '\\':
			return '_'
		}
		return r
	}, name)
}
