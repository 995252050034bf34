// Package tokenizer declares the interface the decoder loop consumes to
// turn message text into token ids and back. The byte-pair encoder
// implementation itself is an external collaborator supplied by the
// caller; this package fixes only its contract with the decoder,
// mirroring metalchat/text/bpe.h and metalchat/bpe.h.
package tokenizer

// SpecialToken identifies one of the decoder loop's reserved tokens. The
// concrete id each one maps to is vocabulary-specific and resolved by a
// Tokenizer implementation, not fixed here.
type SpecialToken int

const (
	// BeginText opens a fresh conversation buffer.
	BeginText SpecialToken = iota
	// EndText closes a conversation buffer.
	EndText
	// BeginHeader opens a turn's role header.
	BeginHeader
	// EndHeader closes a turn's role header.
	EndHeader
	// EndTurn terminates a single assistant or user turn.
	EndTurn
	// EndMessage terminates an assistant message that spans no further
	// turns (the other generation stop condition alongside EndTurn).
	EndMessage
	// IPython marks a turn addressed to the code-execution channel.
	IPython
)

func (s SpecialToken) String() string {
	switch s {
	case BeginText:
		return "begin_text"
	case EndText:
		return "end_text"
	case BeginHeader:
		return "begin_header"
	case EndHeader:
		return "end_header"
	case EndTurn:
		return "end_turn"
	case EndMessage:
		return "end_message"
	case IPython:
		return "ipython"
	default:
		return "unknown"
	}
}

// Tokenizer is the interface the decoder loop calls through. Encode
// appends the ids for s to out; EncodeSpecial resolves one of the
// reserved tokens above to its vocabulary id; Decode maps a single id
// back to the UTF-8 fragment it represents (which may be partial —
// callers assemble fragments across calls).
type Tokenizer interface {
	Encode(s string, out *[]int32) error
	EncodeSpecial(tok SpecialToken) int32
	Decode(id int32) (string, error)
}
