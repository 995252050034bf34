package decoder

import (
	"strings"

	"github.com/ybubnov/metalchat/tokenizer"
)

// flush moves the pending buffer into a (1,N) input tensor, runs one
// forward-and-sample step over it, and returns the sampled token,
// mirroring interpreter::flush.
func (ip *Interpreter) flush() (int32, error) {
	ids := ip.buf
	ip.buf = nil

	if ip.maxPos > 0 && ip.startPos+len(ids) > ip.maxPos {
		return 0, ErrContextExceeded
	}

	logits, err := ip.transformer.Forward(uploadIDs(ids))
	if err != nil {
		return 0, err
	}
	token, err := ip.sampler.Sample(logits)
	if err != nil {
		return 0, err
	}
	ip.startPos += len(ids)
	return token, nil
}

// step runs one more forward-and-sample pass over a single previously
// generated token, advancing the position counter by one.
func (ip *Interpreter) step(prevToken int32) (int32, error) {
	if ip.maxPos > 0 && ip.startPos+1 > ip.maxPos {
		return 0, ErrContextExceeded
	}
	logits, err := ip.transformer.Forward(uploadIDs([]int32{prevToken}))
	if err != nil {
		return 0, err
	}
	token, err := ip.sampler.Sample(logits)
	if err != nil {
		return 0, err
	}
	ip.startPos++
	return token, nil
}

// Read appends an assistant header to the pending buffer, flushes it,
// and repeatedly steps the transformer until the sampled token is
// EndTurn or EndMessage, decoding each token in between into content.
// Mirrors interpreter::read.
func (ip *Interpreter) Read() (Message, error) {
	if err := ip.writeHeader(RoleAssistant); err != nil {
		return Message{}, err
	}

	endTurn := ip.tokens.EncodeSpecial(tokenizer.EndTurn)
	endMessage := ip.tokens.EncodeSpecial(tokenizer.EndMessage)

	token, err := ip.flush()
	if err != nil {
		return Message{}, err
	}

	var content strings.Builder
	for token != endTurn && token != endMessage {
		piece, err := ip.tokens.Decode(token)
		if err != nil {
			return Message{}, err
		}
		content.WriteString(piece)

		token, err = ip.step(token)
		if err != nil {
			return Message{}, err
		}
	}

	return Message{Role: RoleAssistant, Content: content.String()}, nil
}

// Exec alternates Read with command scanning: each time a generated
// message contains a recognized command call, its handler runs and the
// result is written back as an "ipython" turn, continuing until a
// message contains no further command. Mirrors interpreter::exec.
func (ip *Interpreter) Exec() (Message, error) {
	var message Message
	for {
		var err error
		message, err = ip.Read()
		if err != nil {
			return Message{}, err
		}

		stmt, ok := ip.scanner.Scan(message.Content)
		if !ok {
			return message, nil
		}

		handler, ok := ip.commands[stmt.Name]
		if !ok {
			return message, nil
		}
		output, err := handler(stmt)
		if err != nil {
			return Message{}, err
		}
		if err := ip.Write(RoleIPython, output); err != nil {
			return Message{}, err
		}
	}
}
