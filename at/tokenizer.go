package at

import (
	"bufio"
	"bytes"
	"strings"
)

// Splitter tokenizes a run of HM-10 replies. It uses the signature of
// bufio.SplitFunc so it can be used directly with bufio.Scanner.
//
// HM-10 replies carry no line terminator, so consecutive replies such as
// "OK+CONNAOK+CONN" arrive glued together. Splitter cuts the input before
// every "OK" that does not start it. Bytes preceding the first "OK" form a
// token of their own.
//
// The atEOF parameter indicates whether any more data will be available.
// When true, any remaining data is returned as the final token.
func Splitter(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.Index(data[1:], []byte(OK)); i >= 0 {
		return i + 1, data[:i+1], nil
	}

	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

var _ bufio.SplitFunc = Splitter

// SplitReplies returns the individual replies contained in raw.
func SplitReplies(raw string) []string {
	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Split(Splitter)

	var replies []string
	for scanner.Scan() {
		replies = append(replies, scanner.Text())
	}
	return replies
}
