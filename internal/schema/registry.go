// ABOUTME: Registry of payload message definitions with dynamic decode/encode
// ABOUTME: Decoded messages become rawevent maps keyed by proto field name

package schema

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/2389/meshwatch/internal/rawevent"
)

// ErrUnknownSchema is returned when no registered file defines a message.
var ErrUnknownSchema = errors.New("unknown schema")

// Registry resolves message definitions by short name across files.
type Registry struct {
	files []protoreflect.FileDescriptor
}

// NewRegistry builds descriptors from fdps in order. Later files may import
// earlier ones. Lookups search files in order.
func NewRegistry(fdps ...*descriptorpb.FileDescriptorProto) (*Registry, error) {
	resolver := new(protoregistry.Files)
	r := &Registry{}
	for _, fdp := range fdps {
		fd, err := protodesc.NewFile(fdp, resolver)
		if err != nil {
			return nil, fmt.Errorf("building %s: %w", fdp.GetName(), err)
		}
		if err := resolver.RegisterFile(fd); err != nil {
			return nil, fmt.Errorf("registering %s: %w", fdp.GetName(), err)
		}
		r.files = append(r.files, fd)
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for definitions known to be valid.
func MustNewRegistry(fdps ...*descriptorpb.FileDescriptorProto) *Registry {
	r, err := NewRegistry(fdps...)
	if err != nil {
		panic(err)
	}
	return r
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return MustNewRegistry(MeshFile())
})

// Default returns the registry of bundled definitions.
func Default() *Registry {
	return defaultRegistry()
}

// PortNum returns the bundled port enumeration.
func PortNum() protoreflect.EnumDescriptor {
	return Default().Enum("PortNum")
}

// HardwareModel returns the bundled hardware model enumeration.
func HardwareModel() protoreflect.EnumDescriptor {
	return Default().Enum("HardwareModel")
}

// EnumName returns the name of value n in e.
func EnumName(e protoreflect.EnumDescriptor, n int64) (string, bool) {
	if e == nil || n < -1<<31 || n > 1<<31-1 {
		return "", false
	}
	v := e.Values().ByNumber(protoreflect.EnumNumber(n))
	if v == nil {
		return "", false
	}
	return string(v.Name()), true
}

// Message returns the message definition with the given short name.
func (r *Registry) Message(name string) (protoreflect.MessageDescriptor, bool) {
	for _, fd := range r.files {
		if md := fd.Messages().ByName(protoreflect.Name(name)); md != nil {
			return md, true
		}
	}
	return nil, false
}

// Enum returns the top-level enum with the given short name, or nil.
func (r *Registry) Enum(name string) protoreflect.EnumDescriptor {
	for _, fd := range r.files {
		if ed := fd.Enums().ByName(protoreflect.Name(name)); ed != nil {
			return ed
		}
	}
	return nil
}

// Has reports whether a message definition exists.
func (r *Registry) Has(name string) bool {
	_, ok := r.Message(name)
	return ok
}

// Decode parses payload as the named message and returns it as a map value.
func (r *Registry) Decode(name string, payload []byte) (rawevent.Value, error) {
	md, ok := r.Message(name)
	if !ok {
		return rawevent.Null(), fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	msg := dynamicpb.NewMessage(md)
	if err := proto.Unmarshal(payload, msg); err != nil {
		return rawevent.Null(), fmt.Errorf("decoding %s: %w", name, err)
	}
	return ToValue(msg), nil
}

// Encode serialises a map value as the named message. Keys are proto field
// names; unknown keys are an error.
func (r *Registry) Encode(name string, v rawevent.Value) ([]byte, error) {
	md, ok := r.Message(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	msg := dynamicpb.NewMessage(md)
	if err := fill(msg, v); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", name, err)
	}
	return proto.Marshal(msg)
}

// ToValue converts the populated fields of m into a map value.
func ToValue(m protoreflect.Message) rawevent.Value {
	out := rawevent.NewMap()
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		out.Set(string(fd.Name()), fieldValue(fd, v))
		return true
	})
	return rawevent.MapValue(out)
}

func fieldValue(fd protoreflect.FieldDescriptor, v protoreflect.Value) rawevent.Value {
	switch {
	case fd.IsList():
		list := v.List()
		out := rawevent.NewList()
		for i := 0; i < list.Len(); i++ {
			out.Append(singular(fd, list.Get(i)))
		}
		return rawevent.ListValue(out)
	case fd.IsMap():
		out := rawevent.NewMap()
		v.Map().Range(func(k protoreflect.MapKey, mv protoreflect.Value) bool {
			out.Set(k.String(), singular(fd.MapValue(), mv))
			return true
		})
		return rawevent.MapValue(out)
	}
	return singular(fd, v)
}

func singular(fd protoreflect.FieldDescriptor, v protoreflect.Value) rawevent.Value {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return rawevent.Bool(v.Bool())
	case protoreflect.EnumKind:
		return rawevent.Int(int64(v.Enum()))
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return rawevent.Int(v.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return rawevent.Int(int64(v.Uint()))
	case protoreflect.FloatKind:
		// shortest decimal that round-trips the float32
		f, _ := strconv.ParseFloat(strconv.FormatFloat(v.Float(), 'g', -1, 32), 64)
		return rawevent.Float(f)
	case protoreflect.DoubleKind:
		return rawevent.Float(v.Float())
	case protoreflect.StringKind:
		return rawevent.String(v.String())
	case protoreflect.BytesKind:
		b := v.Bytes()
		if b == nil {
			b = []byte{}
		}
		return rawevent.Bytes(b)
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return ToValue(v.Message())
	}
	return rawevent.Null()
}

func fill(msg protoreflect.Message, v rawevent.Value) error {
	m, ok := v.AsMap()
	if !ok {
		return fmt.Errorf("expected map, got %s", v.Kind())
	}
	fields := msg.Descriptor().Fields()
	var err error
	m.Range(func(key string, val rawevent.Value) bool {
		fd := fields.ByName(protoreflect.Name(key))
		if fd == nil {
			err = fmt.Errorf("unknown field %q", key)
			return false
		}
		if fd.IsList() || fd.IsMap() {
			err = fmt.Errorf("field %q: repeated fields are not supported", key)
			return false
		}
		if fd.Kind() == protoreflect.MessageKind {
			child := msg.NewField(fd)
			if err = fill(child.Message(), val); err != nil {
				err = fmt.Errorf("field %q: %w", key, err)
				return false
			}
			msg.Set(fd, child)
			return true
		}
		var pv protoreflect.Value
		pv, err = scalar(fd, val)
		if err != nil {
			err = fmt.Errorf("field %q: %w", key, err)
			return false
		}
		msg.Set(fd, pv)
		return true
	})
	return err
}

func scalar(fd protoreflect.FieldDescriptor, v rawevent.Value) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if b, ok := v.AsBool(); ok {
			return protoreflect.ValueOfBool(b), nil
		}
	case protoreflect.EnumKind:
		if n, ok := v.AsInt(); ok {
			return protoreflect.ValueOfEnum(protoreflect.EnumNumber(n)), nil
		}
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if n, ok := v.AsInt(); ok {
			return protoreflect.ValueOfInt32(int32(n)), nil
		}
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if n, ok := v.AsInt(); ok {
			return protoreflect.ValueOfInt64(n), nil
		}
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if n, ok := v.AsInt(); ok {
			return protoreflect.ValueOfUint32(uint32(n)), nil
		}
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if n, ok := v.AsInt(); ok {
			return protoreflect.ValueOfUint64(uint64(n)), nil
		}
	case protoreflect.FloatKind:
		if f, ok := v.AsFloat(); ok {
			return protoreflect.ValueOfFloat32(float32(f)), nil
		}
	case protoreflect.DoubleKind:
		if f, ok := v.AsFloat(); ok {
			return protoreflect.ValueOfFloat64(f), nil
		}
	case protoreflect.StringKind:
		if s, ok := v.AsString(); ok {
			return protoreflect.ValueOfString(s), nil
		}
	case protoreflect.BytesKind:
		if b, ok := v.AsBytes(); ok {
			return protoreflect.ValueOfBytes(b), nil
		}
	}
	return protoreflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Kind(), fd.Kind())
}
