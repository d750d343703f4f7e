// Package tokenizer loads HuggingFace tokenizer.json artifacts and encodes
// text to token ids. Three vocabulary models are supported: byte-level BPE
// (GPT style), WordPiece (BERT style) and SentencePiece-flavored BPE
// (LLaMA style, spaces encoded as U+2581).
package tokenizer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Type int

const (
	BPE Type = iota
	SentencePiece
	WordPiece
)

func (t Type) String() string {
	switch t {
	case SentencePiece:
		return "sentencepiece"
	case WordPiece:
		return "wordpiece"
	default:
		return "bpe"
	}
}

type Tokenizer struct {
	values  []string
	reverse map[string]int32
	merges  map[string]int

	// added_tokens bypass the vocabulary model entirely
	special map[string]int32

	pretokenizer *regexp.Regexp
	typ          Type
	lowercase    bool

	unk int32
	bos int32
	eos int32
	cls int32
	sep int32

	addBOS bool
	addEOS bool

	// <0xNN> byte fallback ids, -1 where the vocabulary has none
	byteTokens [256]int32
}

// GPT-2 byte-level encoding table mapping raw bytes to printable runes.
var byteToRune [256]rune

func init() {
	for b := 0; b < 256; b++ {
		r := rune(b)
		switch {
		case r == 0x00ad:
			r = 0x0143
		case r <= 0x0020:
			r = r + 0x0100
		case r >= 0x007f && r <= 0x00a0:
			r = r + 0x00a2
		}
		byteToRune[b] = r
	}
}

type tokenizerJSON struct {
	Normalizer json.RawMessage `json:"normalizer"`
	Model      struct {
		Type     string           `json:"type"`
		UnkToken string           `json:"unk_token"`
		Vocab    map[string]int32 `json:"vocab"`
		Merges   json.RawMessage  `json:"merges"` // []string or [][]string
	} `json:"model"`
	PreTokenizer json.RawMessage `json:"pre_tokenizer"`
	Decoder      json.RawMessage `json:"decoder"`
	AddedTokens  []struct {
		ID      int32  `json:"id"`
		Content string `json:"content"`
	} `json:"added_tokens"`
}

// Load reads a tokenizer.json artifact. Companion files in the same
// directory (tokenizer_config.json, special_tokens_map.json) refine the
// special token configuration when present.
func Load(path string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tokenizer: %w", err)
	}

	var raw tokenizerJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse tokenizer: %w", err)
	}

	if len(raw.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer %s has an empty vocabulary", path)
	}

	t := &Tokenizer{
		reverse: raw.Model.Vocab,
		merges:  make(map[string]int),
		special: make(map[string]int32),
		unk:     -1,
		bos:     -1,
		eos:     -1,
		cls:     -1,
		sep:     -1,
	}

	for token, id := range raw.Model.Vocab {
		t.grow(id)
		t.values[id] = token
	}

	for _, tok := range raw.AddedTokens {
		t.grow(tok.ID)
		t.values[tok.ID] = tok.Content
		t.special[tok.Content] = tok.ID
	}

	if err := t.parseMerges(raw.Model.Merges, raw.Model.Type); err != nil {
		return nil, err
	}

	switch {
	case raw.Model.Type == "WordPiece":
		t.typ = WordPiece
	case usesSentencePieceDecoder(raw.Decoder):
		t.typ = SentencePiece
	default:
		t.typ = BPE
	}

	t.lowercase = lowercaseNormalizer(raw.Normalizer)

	if raw.Model.UnkToken != "" {
		if id, ok := t.reverse[raw.Model.UnkToken]; ok {
			t.unk = id
		}
	}

	t.resolveSpecials(filepath.Dir(path))

	for i := range t.byteTokens {
		t.byteTokens[i] = -1
	}
	for b := 0; b < 256; b++ {
		if id, ok := t.reverse[fmt.Sprintf("<0x%02X>", b)]; ok {
			t.byteTokens[b] = id
		}
	}

	if t.typ == BPE {
		pattern := pretokenizerPattern(raw.PreTokenizer)
		if pattern == "" {
			pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+(?!\S)|\s+`
		}
		re, err := regexp.Compile(rewriteForRE2(pattern))
		if err != nil {
			return nil, fmt.Errorf("failed to compile pretokenizer regex %q: %w", pattern, err)
		}
		t.pretokenizer = re
	}

	return t, nil
}

func (t *Tokenizer) grow(id int32) {
	if int(id) >= len(t.values) {
		values := make([]string, id+1)
		copy(values, t.values)
		t.values = values
	}
}

func (t *Tokenizer) parseMerges(raw json.RawMessage, modelType string) error {
	if modelType == "WordPiece" || raw == nil {
		return nil
	}

	// merges come as []string ("a b") or [][]string (["a", "b"])
	var flat []string
	if err := json.Unmarshal(raw, &flat); err != nil {
		var pairs [][]string
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return fmt.Errorf("failed to parse merges: %w", err)
		}
		flat = make([]string, len(pairs))
		for i, pair := range pairs {
			flat[i] = pair[0] + " " + pair[1]
		}
	}

	for i, merge := range flat {
		t.merges[merge] = i
	}
	return nil
}

// resolveSpecials fills the sequence-wrapping token ids from vocabulary
// conventions, then lets companion config files override them.
func (t *Tokenizer) resolveSpecials(dir string) {
	lookup := func(names ...string) int32 {
		for _, name := range names {
			if id, ok := t.special[name]; ok {
				return id
			}
			if id, ok := t.reverse[name]; ok {
				return id
			}
		}
		return -1
	}

	t.cls = lookup("[CLS]")
	t.sep = lookup("[SEP]")
	t.bos = lookup("<s>", "<|startoftext|>")
	t.eos = lookup("</s>", "<|endoftext|>")

	if t.typ == WordPiece {
		// BERT encodings are [CLS] text [SEP]
		t.addBOS = t.cls >= 0
		t.addEOS = t.sep >= 0
	} else {
		t.addBOS = t.bos >= 0
		t.addEOS = false
	}

	if data, err := os.ReadFile(filepath.Join(dir, "tokenizer_config.json")); err == nil {
		var config struct {
			BOSToken    json.RawMessage `json:"bos_token"`
			EOSToken    json.RawMessage `json:"eos_token"`
			AddBOSToken *bool           `json:"add_bos_token"`
			AddEOSToken *bool           `json:"add_eos_token"`
			DoLowerCase *bool           `json:"do_lower_case"`
		}
		if err := json.Unmarshal(data, &config); err == nil {
			if id := lookup(tokenContent(config.BOSToken)); id >= 0 {
				t.bos = id
			}
			if id := lookup(tokenContent(config.EOSToken)); id >= 0 {
				t.eos = id
			}
			if config.AddBOSToken != nil {
				t.addBOS = *config.AddBOSToken
			}
			if config.AddEOSToken != nil {
				t.addEOS = *config.AddEOSToken
			}
			if config.DoLowerCase != nil {
				t.lowercase = *config.DoLowerCase
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(dir, "special_tokens_map.json")); err == nil {
		var tokens map[string]json.RawMessage
		if err := json.Unmarshal(data, &tokens); err == nil {
			if id := lookup(tokenContent(tokens["cls_token"])); id >= 0 {
				t.cls = id
			}
			if id := lookup(tokenContent(tokens["sep_token"])); id >= 0 {
				t.sep = id
			}
			if t.bos < 0 {
				t.bos = lookup(tokenContent(tokens["bos_token"]))
			}
			if t.eos < 0 {
				t.eos = lookup(tokenContent(tokens["eos_token"]))
			}
		}
	}
}

// tokenContent handles both representations of a token in HuggingFace
// configs: "tok" and {"content": "tok", ...}.
func tokenContent(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Content
	}
	return ""
}

func lowercaseNormalizer(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var norm struct {
		Type      string `json:"type"`
		Lowercase bool   `json:"lowercase"`
	}
	if err := json.Unmarshal(raw, &norm); err != nil {
		return false
	}
	return norm.Type == "Lowercase" || norm.Lowercase
}

// usesSentencePieceDecoder detects the Replace(▁ -> space) decoder step that
// distinguishes SentencePiece vocabularies from byte-level BPE ones.
func usesSentencePieceDecoder(raw json.RawMessage) bool {
	if raw == nil {
		return false
	}
	var seq struct {
		Type     string `json:"type"`
		Decoders []struct {
			Type    string `json:"type"`
			Pattern struct {
				String string `json:"String"`
			} `json:"pattern"`
		} `json:"decoders"`
	}
	if err := json.Unmarshal(raw, &seq); err != nil {
		return false
	}
	if seq.Type != "Sequence" {
		return false
	}
	for _, dec := range seq.Decoders {
		if dec.Type == "Replace" && dec.Pattern.String == "▁" {
			return true
		}
	}
	return false
}

func pretokenizerPattern(raw json.RawMessage) string {
	if raw == nil {
		return ""
	}

	var single struct {
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.Pattern.Regex != "" {
		return single.Pattern.Regex
	}

	var seq struct {
		Type          string `json:"type"`
		Pretokenizers []struct {
			Type    string `json:"type"`
			Pattern struct {
				Regex string `json:"Regex"`
			} `json:"pattern"`
		} `json:"pretokenizers"`
	}
	if err := json.Unmarshal(raw, &seq); err == nil && seq.Type == "Sequence" {
		for _, pt := range seq.Pretokenizers {
			if pt.Type == "Split" && pt.Pattern.Regex != "" {
				return pt.Pattern.Regex
			}
		}
	}

	return ""
}

// rewriteForRE2 rewrites PCRE constructs HuggingFace patterns rely on into
// forms Go's regexp accepts. The \s+(?!\S) lookahead becomes plain \s+ and
// encodeBPE fixes the affected whitespace boundaries afterwards; inline
// case-insensitive contraction groups are expanded to explicit classes.
func rewriteForRE2(pattern string) string {
	pattern = strings.ReplaceAll(pattern, `\s+(?!\S)|\s+`, `\s+`)
	pattern = strings.ReplaceAll(pattern,
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)?`,
		`(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])?`)
	pattern = strings.ReplaceAll(pattern,
		`(?i:'s|'t|'re|'ve|'m|'ll|'d)`,
		`(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])`)
	return pattern
}

// Encode tokenizes text. With addSpecial the sequence is wrapped in the
// vocabulary's sequence markers: [CLS] ... [SEP] for WordPiece, BOS/EOS per
// the artifact's add flags otherwise.
func (t *Tokenizer) Encode(s string, addSpecial bool) ([]int32, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("text is not valid UTF-8")
	}

	if t.lowercase {
		s = strings.ToLower(s)
	}

	var ids []int32
	for _, part := range t.splitSpecial(s) {
		if id, ok := t.special[part]; ok {
			ids = append(ids, id)
			continue
		}

		switch t.typ {
		case WordPiece:
			for _, word := range splitWords(part) {
				ids = t.encodeWordPiece(word, ids)
			}
		default:
			ids = t.encodeBPE(part, ids)
		}
	}

	if addSpecial {
		ids = t.wrap(ids)
	}
	return ids, nil
}

func (t *Tokenizer) wrap(ids []int32) []int32 {
	if t.addBOS {
		head := t.bos
		if t.typ == WordPiece {
			head = t.cls
		}
		if head >= 0 {
			ids = append([]int32{head}, ids...)
		}
	}
	if t.addEOS {
		tail := t.eos
		if t.typ == WordPiece {
			tail = t.sep
		}
		if tail >= 0 {
			ids = append(ids, tail)
		}
	}
	return ids
}

// splitSpecial cuts s into runs of plain text and verbatim added tokens,
// longest added token first.
func (t *Tokenizer) splitSpecial(s string) []string {
	if len(t.special) == 0 {
		return []string{s}
	}

	tokens := make([]string, 0, len(t.special))
	for tok := range t.special {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool { return len(tokens[i]) > len(tokens[j]) })

	var parts []string
	for len(s) > 0 {
		next := len(s)
		matched := ""
		for _, tok := range tokens {
			if idx := strings.Index(s, tok); idx >= 0 && (idx < next || (idx == next && matched == "")) {
				next = idx
				matched = tok
			}
		}
		if next > 0 {
			parts = append(parts, s[:next])
		}
		if matched == "" {
			break
		}
		parts = append(parts, matched)
		s = s[next+len(matched):]
	}
	return parts
}

// encodeBPE splits a run of text with the pretokenizer, then BPE-merges
// each chunk.
func (t *Tokenizer) encodeBPE(s string, ids []int32) []int32 {
	chunks := []string{s}
	if t.pretokenizer != nil {
		chunks = t.pretokenize(s)
	}

	for _, chunk := range chunks {
		if chunk == "" {
			continue
		}

		var encoded string
		if t.typ == SentencePiece {
			encoded = strings.ReplaceAll(chunk, " ", "▁")
		} else {
			var sb strings.Builder
			sb.Grow(len(chunk) * 2)
			for i := 0; i < len(chunk); i++ {
				sb.WriteRune(byteToRune[chunk[i]])
			}
			encoded = sb.String()
		}

		if id, ok := t.reverse[encoded]; ok {
			ids = append(ids, id)
			continue
		}
		ids = t.merge(encoded, ids)
	}

	return ids
}

func (t *Tokenizer) pretokenize(s string) []string {
	var chunks []string
	offset := 0
	for offset < len(s) {
		loc := t.pretokenizer.FindStringIndex(s[offset:])
		if loc == nil {
			break
		}
		chunks = append(chunks, s[offset+loc[0]:offset+loc[1]])
		offset += loc[1]
	}

	// Python's \s+(?!\S) keeps the final space of an inter-word gap attached
	// to the following word; restore that boundary after the RE2 rewrite.
	for i := 0; i < len(chunks)-1; i++ {
		if !isBlank(chunks[i]) {
			continue
		}
		first, _ := utf8.DecodeRuneInString(chunks[i+1])
		if !unicode.IsLetter(first) {
			continue
		}
		last, size := utf8.DecodeLastRuneInString(chunks[i])
		if unicode.IsSpace(last) {
			cut := len(chunks[i]) - size
			chunks[i+1] = chunks[i][cut:] + chunks[i+1]
			chunks[i] = chunks[i][:cut]
		}
	}

	kept := chunks[:0]
	for _, c := range chunks {
		if c != "" {
			kept = append(kept, c)
		}
	}
	return kept
}

func isBlank(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r == '\n' || r == '\r' || !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// merge applies the lowest-rank BPE merge until none remain, then maps the
// surviving parts to ids with <0xNN> byte fallback.
func (t *Tokenizer) merge(encoded string, ids []int32) []int32 {
	runes := []rune(encoded)
	parts := make([]string, len(runes))
	for i, r := range runes {
		parts[i] = string(r)
	}

	for len(parts) > 1 {
		best, at := int(^uint(0)>>1), -1
		for i := 0; i < len(parts)-1; i++ {
			if rank, ok := t.merges[parts[i]+" "+parts[i+1]]; ok && rank < best {
				best, at = rank, i
			}
		}
		if at < 0 {
			break
		}
		parts[at] += parts[at+1]
		parts = append(parts[:at+1], parts[at+2:]...)
	}

	for _, part := range parts {
		if id, ok := t.reverse[part]; ok {
			ids = append(ids, id)
			continue
		}
		for _, b := range []byte(part) {
			if id := t.byteTokens[b]; id >= 0 {
				ids = append(ids, id)
			} else if t.unk >= 0 {
				ids = append(ids, t.unk)
			}
		}
	}
	return ids
}

// splitWords performs BERT-style pre-tokenization: whitespace separates
// words and punctuation stands alone.
func splitWords(s string) []string {
	var words []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			words = append(words, sb.String())
			sb.Reset()
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			sb.WriteRune(r)
		}
	}
	flush()
	return words
}

// encodeWordPiece greedily matches the longest vocabulary entry, prefixing
// continuations with ##.
func (t *Tokenizer) encodeWordPiece(word string, ids []int32) []int32 {
	if id, ok := t.reverse[word]; ok {
		return append(ids, id)
	}

	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		found := false
		for end > start {
			sub := string(runes[start:end])
			if start > 0 {
				sub = "##" + sub
			}
			if id, ok := t.reverse[sub]; ok {
				ids = append(ids, id)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			if t.unk >= 0 {
				ids = append(ids, t.unk)
			}
			start++
		}
	}
	return ids
}

// VocabSize returns the vocabulary size including added tokens.
func (t *Tokenizer) VocabSize() int {
	return len(t.values)
}

// Type reports the detected vocabulary model.
func (t *Tokenizer) Type() Type {
	return t.typ
}
