// Package message formats chat payloads delivered to peers.
package message

import "fmt"

// NoticeKind - subject of system notice.
type NoticeKind int

const (
	_ NoticeKind = iota
	// NoticeJoin - peer has connected.
	NoticeJoin
	// NoticeLeave - peer has disconnected.
	NoticeLeave
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeJoin:
		return "joined"
	case NoticeLeave:
		return "left"
	default:
		return "unknown"
	}
}

// Chat - builds ordinary chat payload "[id]: body".
// Body is not modified, trailing new line (if any) is kept as is.
func Chat(id string, body []byte) []byte {
	out := make([]byte, 0, len(id)+len(body)+4)
	out = append(out, '[')
	out = append(out, id...)
	out = append(out, "]: "...)
	return append(out, body...)
}

// Notice - builds system notice payload "\n[notice] id joined\n".
func Notice(kind NoticeKind, id string) []byte {
	return []byte(fmt.Sprintf("\n[notice] %s %s\n", id, kind))
}
