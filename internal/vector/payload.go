package vector

import (
	"fmt"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
)

// toPayload builds a Qdrant payload from chunk text and metadata. The text
// lives under the reserved "text" key; metadata values are coerced to the
// store's scalar types.
func toPayload(text string, metadata map[string]any) map[string]*pb.Value {
	payload := make(map[string]*pb.Value, len(metadata)+1)
	payload["text"] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: text}}
	for k, v := range metadata {
		payload[k] = toValue(v)
	}
	return payload
}

// toValue coerces an arbitrary metadata value to a Qdrant scalar.
// Numeric strings become numbers; anything outside the scalar set is
// stringified. Nested structures are not supported.
func toValue(v any) *pb.Value {
	switch x := v.(type) {
	case nil:
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	case bool:
		return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: x}}
	case int:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
	case int32:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: int64(x)}}
	case int64:
		return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: x}}
	case float32:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: float64(x)}}
	case float64:
		return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: x}}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}
		}
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: f}}
		}
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: x}}
	default:
		return &pb.Value{Kind: &pb.Value_StringValue{StringValue: fmt.Sprint(x)}}
	}
}

// fromValue converts a Qdrant scalar back to a Go value.
func fromValue(v *pb.Value) any {
	switch kind := v.GetKind().(type) {
	case *pb.Value_NullValue:
		return nil
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_StringValue:
		return kind.StringValue
	default:
		return v.String()
	}
}

// resultFromPoint maps a scored point to a SearchResult. The "text" key is
// lifted out of the payload; everything else becomes metadata.
func resultFromPoint(pt *pb.ScoredPoint) SearchResult {
	text := ""
	meta := make(map[string]any, len(pt.Payload))
	for k, v := range pt.Payload {
		if k == "text" {
			text = v.GetStringValue()
			continue
		}
		meta[k] = fromValue(v)
	}
	return SearchResult{
		ID:       pt.Id.GetNum(),
		Text:     text,
		Metadata: meta,
		Score:    pt.Score,
	}
}
