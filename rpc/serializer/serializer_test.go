package serializer

import (
	"reflect"
	"testing"
	"time"

	"github.com/ValentinKolb/cKV/lib/continuous"
	"github.com/ValentinKolb/cKV/lib/docstore"
	"github.com/ValentinKolb/cKV/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Put request
		*common.NewPutRequest("tx-1", docstore.Doc{Key: "k", Content: "hello", Tags: []string{"a", "b"}}),

		// Get response
		{
			MsgType: common.MsgTDocGet,
			Ok:      true,
			Doc:     &docstore.Doc{Key: "k", Content: "v", OID: 4, Seq: 2, TransID: 9, Draft: true},
		},

		// Range response
		{
			MsgType: common.MsgTDocRange,
			Docs:    []docstore.Doc{{Key: "a", OID: 1, Seq: 1}, {Key: "b", OID: 2, Seq: 3, Deleted: true}},
		},

		// Search request
		*common.NewSearchRequest("tx-2", "some words", 10),

		// Error response with code
		{
			MsgType: common.MsgTDocCommit,
			Err:     "newer version committed",
			ErrCode: continuous.ErrCConflict,
		},

		// Info response
		{
			MsgType: common.MsgTDocInfo,
			Info:    []byte(`{"histories":1}`),
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTDocInfo; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestCreationTime checks that version timestamps survive the round trip
func TestCreationTime(t *testing.T) {
	created := time.Date(2024, 5, 17, 10, 30, 0, 123456789, time.UTC)

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			data, err := serializer.Serialize(*common.NewPutResponse(docstore.Doc{Key: "k", Created: created}, nil))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if result.Doc == nil || !result.Doc.Created.Equal(created) {
				t.Errorf("Creation time mismatch: %+v", result.Doc)
			}
		})
	}
}

// TestInvalidData tests how the serializers handle corrupt data
func TestInvalidData(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			for _, data := range [][]byte{{}, {0xff, 0x01}, []byte(`{"msg_type":"nope"}`)} {
				var msg common.Message
				if err := serializer.Deserialize(data, &msg); err == nil {
					t.Errorf("Expected an error for %q", data)
				}
			}
		})
	}
}
