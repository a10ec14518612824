// Package feed turns raw feed payloads into ordered batches of local-store
// mutations. Parsers never perform I/O and never apply anything themselves;
// a batch is either returned whole or not at all.
package feed

import (
	"fmt"
)

// Kind identifies a feed format.
type Kind string

// Feed kinds.
const (
	KindRooms         Kind = "rooms"
	KindTracks        Kind = "tracks"
	KindSpeakers      Kind = "speakers"
	KindSessions      Kind = "sessions"
	KindPresentations Kind = "presentations"
	KindSchedule      Kind = "schedule"
	KindNews          Kind = "news"
	KindTweets        Kind = "tweets"
)

// Kinds lists every known feed kind in seeding order.
var Kinds = []Kind{
	KindRooms,
	KindTracks,
	KindSpeakers,
	KindSessions,
	KindPresentations,
	KindSchedule,
	KindNews,
	KindTweets,
}

// OpType is the kind of a MutationOp.
type OpType int

// Mutation op types.
const (
	OpInsert OpType = iota
	OpUpdate
	OpMarkAllDeleted
	OpDeleteWhereMarked
)

func (t OpType) String() string {
	switch t {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpMarkAllDeleted:
		return "mark_all_deleted"
	case OpDeleteWhereMarked:
		return "delete_where_marked"
	default:
		return fmt.Sprintf("op(%d)", int(t))
	}
}

// MutationOp is a single local-store mutation.
//
// Insert carries the full row including its natural key column and clears the
// deletion marker on the affected row. Update touches only the listed fields
// of the row identified by Key.
type MutationOp struct {
	Type   OpType
	Key    string
	Fields map[string]any
}

// Insert returns an upsert op.
func Insert(fields map[string]any) MutationOp {
	return MutationOp{Type: OpInsert, Fields: fields}
}

// Update returns an op touching only the given fields of an existing row.
func Update(key string, fields map[string]any) MutationOp {
	return MutationOp{Type: OpUpdate, Key: key, Fields: fields}
}

// MarkAllDeleted returns the op that marks every row of the bucket.
func MarkAllDeleted() MutationOp {
	return MutationOp{Type: OpMarkAllDeleted}
}

// DeleteWhereMarked returns the op that removes rows still bearing the marker.
func DeleteWhereMarked() MutationOp {
	return MutationOp{Type: OpDeleteWhereMarked}
}

// Parser turns a raw payload into mutation ops.
type Parser interface {
	Parse(payload []byte) ([]MutationOp, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(payload []byte) ([]MutationOp, error)

// Parse calls f(payload).
func (f ParserFunc) Parse(payload []byte) ([]MutationOp, error) {
	return f(payload)
}

var parsers = map[Kind]Parser{
	KindRooms:         ParserFunc(parseRooms),
	KindTracks:        ParserFunc(parseTracks),
	KindSpeakers:      ParserFunc(parseSpeakers),
	KindSessions:      ParserFunc(parseSessions),
	KindPresentations: ParserFunc(parsePresentations),
	KindSchedule:      ParserFunc(parseSchedule),
	KindNews:          ParserFunc(parseNews),
	KindTweets:        ParserFunc(parseTweets),
}

// ParserFor returns the parser for the given feed kind.
func ParserFor(kind Kind) (Parser, error) {
	p, ok := parsers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown feed kind %q", kind)
	}
	return p, nil
}

// ParseError reports a malformed payload. The wrapped error is the decoder's.
type ParseError struct {
	Kind Kind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s feed: %v", e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(kind Kind, err error) error {
	return &ParseError{Kind: kind, Err: err}
}

// fullListing wraps per-entry inserts in the mark-and-sweep envelope.
func fullListing(inserts []MutationOp) []MutationOp {
	ops := make([]MutationOp, 0, len(inserts)+2)
	ops = append(ops, MarkAllDeleted())
	ops = append(ops, inserts...)
	return append(ops, DeleteWhereMarked())
}
