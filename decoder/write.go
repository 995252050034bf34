package decoder

import "github.com/ybubnov/metalchat/tokenizer"

// Write appends message as a new turn to the pending buffer: a header
// naming its role, then its content (after the mustache-lite template
// pass substitutes declared variables), then an end-of-turn marker.
// Mirrors interpreter::write / write_header in interpreter.cc.
func (ip *Interpreter) Write(role, content string) error {
	if err := ip.writeHeader(role); err != nil {
		return err
	}

	rendered := ip.render(content)
	if err := ip.tokens.Encode(rendered, &ip.buf); err != nil {
		return err
	}
	ip.buf = append(ip.buf, ip.tokens.EncodeSpecial(tokenizer.EndTurn))
	return nil
}

func (ip *Interpreter) writeHeader(role string) error {
	ip.buf = append(ip.buf, ip.tokens.EncodeSpecial(tokenizer.BeginHeader))
	// The role name itself is plain text, encoded the same way message
	// content is, not a special token.
	if err := ip.tokens.Encode(role, &ip.buf); err != nil {
		return err
	}
	ip.buf = append(ip.buf, ip.tokens.EncodeSpecial(tokenizer.EndHeader))
	return ip.tokens.Encode("\n\n", &ip.buf)
}
