package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/docstore"
	gojson "github.com/goccy/go-json"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	TxID  string `json:"tx_id,omitempty"` // Used for: all document operations, Commit, Rollback; Begin (response)
	Key   string `json:"key,omitempty"`   // Used for: Get, Delete, History
	From  string `json:"from,omitempty"`  // Used for: Range
	Till  string `json:"till,omitempty"`  // Used for: Range
	Query string `json:"query,omitempty"` // Used for: Search (query), Tagged (tag)
	Limit int    `json:"limit,omitempty"` // Used for: Search

	// Payload fields
	Doc  *docstore.Doc  `json:"doc,omitempty"`  // Used for: Put (request and response), Get (response)
	Docs []docstore.Doc `json:"docs,omitempty"` // Used for: Range, Tagged, Search, History responses
	Info []byte         `json:"info,omitempty"` // Used for: Info response (json encoded continuous.Info)

	// Response only fields
	Ok      bool               `json:"ok,omitempty"`       // Used for: Get, Delete responses
	Err     string             `json:"err,omitempty"`      // Empty if no error, otherwise contains the error message
	ErrCode continuous.ErrCode `json:"err_code,omitempty"` // Code of a *continuous.Error, ErrCNone otherwise
}

// SetError stores err in the message.
func (m *Message) SetError(err error) {
	if err == nil {
		return
	}
	m.Err = err.Error()
	var ce *continuous.Error
	if errors.As(err, &ce) {
		m.ErrCode = ce.Code
		m.Err = ce.Msg
	}
}

// AsError rebuilds the error carried by the message, or returns nil.
// Errors of the continuous layer keep their code, so errors.Is works on both
// sides of the wire.
func (m *Message) AsError() error {
	if m.Err == "" && m.ErrCode == continuous.ErrCNone {
		return nil
	}
	if m.ErrCode != continuous.ErrCNone {
		return continuous.NewError(m.ErrCode, m.Err)
	}
	return fmt.Errorf("rpc: %s", m.Err)
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewBeginRequest creates a new Begin request
func NewBeginRequest() *Message {
	return &Message{MsgType: MsgTDocBegin}
}

// NewBeginResponse creates a new Begin response
func NewBeginResponse(tx docstore.TxID, err error) *Message {
	msg := &Message{MsgType: MsgTDocBegin, TxID: string(tx)}
	msg.SetError(err)
	return msg
}

// NewPutRequest creates a new Put request
func NewPutRequest(tx docstore.TxID, doc docstore.Doc) *Message {
	return &Message{MsgType: MsgTDocPut, TxID: string(tx), Doc: &doc}
}

// NewPutResponse creates a new Put response
func NewPutResponse(doc docstore.Doc, err error) *Message {
	msg := &Message{MsgType: MsgTDocPut}
	if err == nil {
		msg.Doc = &doc
	}
	msg.SetError(err)
	return msg
}

// NewGetRequest creates a new Get request
func NewGetRequest(tx docstore.TxID, key string) *Message {
	return &Message{MsgType: MsgTDocGet, TxID: string(tx), Key: key}
}

// NewGetResponse creates a new Get response
func NewGetResponse(doc docstore.Doc, ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTDocGet, Ok: ok}
	if ok {
		msg.Doc = &doc
	}
	msg.SetError(err)
	return msg
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(tx docstore.TxID, key string) *Message {
	return &Message{MsgType: MsgTDocDelete, TxID: string(tx), Key: key}
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(ok bool, err error) *Message {
	msg := &Message{MsgType: MsgTDocDelete, Ok: ok}
	msg.SetError(err)
	return msg
}

// NewRangeRequest creates a new Range request
func NewRangeRequest(tx docstore.TxID, from, till string) *Message {
	return &Message{MsgType: MsgTDocRange, TxID: string(tx), From: from, Till: till}
}

// NewTaggedRequest creates a new Tagged request
func NewTaggedRequest(tx docstore.TxID, tag string) *Message {
	return &Message{MsgType: MsgTDocTagged, TxID: string(tx), Query: tag}
}

// NewSearchRequest creates a new Search request
func NewSearchRequest(tx docstore.TxID, query string, limit int) *Message {
	return &Message{MsgType: MsgTDocSearch, TxID: string(tx), Query: query, Limit: limit}
}

// NewHistoryRequest creates a new History request
func NewHistoryRequest(key string) *Message {
	return &Message{MsgType: MsgTDocHistory, Key: key}
}

// NewDocsResponse creates the response of a Range, Tagged, Search or History request
func NewDocsResponse(t MessageType, docs []docstore.Doc, err error) *Message {
	msg := &Message{MsgType: t, Docs: docs}
	msg.SetError(err)
	return msg
}

// NewCommitRequest creates a new Commit request
func NewCommitRequest(tx docstore.TxID) *Message {
	return &Message{MsgType: MsgTDocCommit, TxID: string(tx)}
}

// NewRollbackRequest creates a new Rollback request
func NewRollbackRequest(tx docstore.TxID) *Message {
	return &Message{MsgType: MsgTDocRollback, TxID: string(tx)}
}

// NewEndResponse creates the response of a Commit or Rollback request
func NewEndResponse(t MessageType, err error) *Message {
	msg := &Message{MsgType: t}
	msg.SetError(err)
	return msg
}

// NewInfoRequest creates a new Info request
func NewInfoRequest() *Message {
	return &Message{MsgType: MsgTDocInfo}
}

// NewInfoResponse creates a new Info response
func NewInfoResponse(info continuous.Info, err error) *Message {
	msg := &Message{MsgType: MsgTDocInfo}
	if err == nil {
		// engine metadata has no fixed type, json keeps it serializer independent
		data, mErr := gojson.Marshal(info)
		if mErr != nil {
			err = mErr
		}
		msg.Info = data
	}
	msg.SetError(err)
	return msg
}

// DecodeInfo decodes the Info payload of a response
func (m *Message) DecodeInfo() (continuous.Info, error) {
	var info continuous.Info
	if len(m.Info) == 0 {
		return info, fmt.Errorf("rpc: message carries no info")
	}
	err := gojson.Unmarshal(m.Info, &info)
	return info, err
}

// NewErrorResponse creates a new error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type
// --------------------------------------------------------------------------

// MessageType represents the type of message
type MessageType uint8

// String returns a human-readable representation of the message type
func (t MessageType) String() string {
	switch t {
	case MsgTDocBegin:
		return "begin"
	case MsgTDocPut:
		return "put"
	case MsgTDocGet:
		return "get"
	case MsgTDocDelete:
		return "delete"
	case MsgTDocRange:
		return "range"
	case MsgTDocTagged:
		return "tagged"
	case MsgTDocSearch:
		return "search"
	case MsgTDocHistory:
		return "history"
	case MsgTDocCommit:
		return "commit"
	case MsgTDocRollback:
		return "rollback"
	case MsgTDocInfo:
		return "info"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for c := MsgTSuccess; c <= MsgTDocInfo; c++ {
		if c.String() == s {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IDocStore operations

	MsgTDocBegin    // Open a transaction
	MsgTDocPut      // Insert or update a document
	MsgTDocGet      // Get a document by key
	MsgTDocDelete   // Delete a document by key
	MsgTDocRange    // Documents in a key range
	MsgTDocTagged   // Documents with a tag
	MsgTDocSearch   // Full-text search
	MsgTDocHistory  // All versions of a key
	MsgTDocCommit   // Commit a transaction
	MsgTDocRollback // Roll back a transaction
	MsgTDocInfo     // Database info
)
