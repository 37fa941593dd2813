// Package keyfn derives stable string keys from argument lists, for callers
// that want to memoize pool instances by the arguments used to construct
// them.
//
// The encoding is canonical and injective on supported values: equal
// argument lists always produce equal keys, and distinct argument lists
// always produce distinct keys. No hashing is involved, so two different
// argument lists can never silently share an instance.
//
// Go's type identity participates in the encoding: int64(1), uint64(1) and
// float64(1) derive three different keys, as do values of distinct named
// types with equal underlying values. Integer widths within one signedness
// family collapse, so int(7) and int64(7) coincide; a literal and a typed
// config field keying the same instance is the common case, not a bug.
// Pointers are keyed through their pointee, []byte by its content, and
// time.Time by its instant.
//
// Named types are distinguished by their package-qualified short name
// (reflect's Type.String), so two identically named types in identically
// named packages of different import paths would share a key. Equal pointees
// behind pointers of different types also coincide unless the pointee's own
// type separates them.
//
// Values whose natural equality cannot be captured by a stable key are
// rejected with an error wrapping ErrUnhashable: maps, slices other than
// []byte, functions, channels, structs with unexported fields, and NaN.
package keyfn

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrUnhashable reports an argument that cannot form a stable key.
var ErrUnhashable = errors.New("keyfn: unhashable argument")

// Reduce derives a key from positional arguments, in order.
func Reduce(args ...any) (string, error) {
	var sb strings.Builder
	for i, arg := range args {
		if err := encodeValue(&sb, arg); err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}
	return sb.String(), nil
}

// ReduceNamed derives a key from positional arguments followed by named
// arguments. Named arguments are folded in name-sorted order, so maps that
// are equal produce equal keys regardless of insertion order.
func ReduceNamed(args []any, named map[string]any) (string, error) {
	var sb strings.Builder
	for i, arg := range args {
		if err := encodeValue(&sb, arg); err != nil {
			return "", fmt.Errorf("argument %d: %w", i, err)
		}
	}

	if len(named) > 0 {
		names := make([]string, 0, len(named))
		for name := range named {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			writeString(&sb, 'n', name)
			if err := encodeValue(&sb, named[name]); err != nil {
				return "", fmt.Errorf("argument %q: %w", name, err)
			}
		}
	}
	return sb.String(), nil
}

// encodeValue appends one value's canonical encoding. Common types are
// handled directly; everything else goes through reflection.
func encodeValue(sb *strings.Builder, v any) error {
	switch x := v.(type) {
	case nil:
		sb.WriteString("z;")
	case bool:
		if x {
			sb.WriteString("b1;")
		} else {
			sb.WriteString("b0;")
		}
	case string:
		writeString(sb, 's', x)
	case []byte:
		writeString(sb, 'y', string(x))
	case int:
		writeInt(sb, int64(x))
	case int8:
		writeInt(sb, int64(x))
	case int16:
		writeInt(sb, int64(x))
	case int32:
		writeInt(sb, int64(x))
	case int64:
		writeInt(sb, x)
	case uint:
		writeUint(sb, uint64(x))
	case uint8:
		writeUint(sb, uint64(x))
	case uint16:
		writeUint(sb, uint64(x))
	case uint32:
		writeUint(sb, uint64(x))
	case uint64:
		writeUint(sb, x)
	case uintptr:
		writeUint(sb, uint64(x))
	case float32:
		return writeFloat(sb, "f32", float64(x))
	case float64:
		return writeFloat(sb, "f64", x)
	case complex64:
		return writeComplex(sb, "c64", complex128(x))
	case complex128:
		return writeComplex(sb, "c128", x)
	case time.Time:
		sb.WriteByte('t')
		sb.WriteString(strconv.FormatInt(x.UnixNano(), 10))
		sb.WriteByte(';')
	case time.Duration:
		sb.WriteByte('d')
		sb.WriteString(strconv.FormatInt(int64(x), 10))
		sb.WriteByte(';')
	default:
		return encodeReflect(sb, reflect.ValueOf(v))
	}
	return nil
}

// encodeReflect handles named types, pointers, arrays, and structs.
func encodeReflect(sb *strings.Builder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		// A named scalar type: tag with the type name, then encode the
		// underlying value so equal-typed equal values coincide.
		writeString(sb, 'T', v.Type().String())
		return encodeScalar(sb, v)

	case reflect.Pointer:
		if v.IsNil() {
			// A nil carries no pointee to key through, so the pointer
			// type itself keeps typed nils of distinct types apart.
			writeString(sb, 'p', v.Type().String())
			sb.WriteString("z;")
			return nil
		}
		sb.WriteByte('p')
		return encodeValue(sb, v.Elem().Interface())

	case reflect.Interface:
		if v.IsNil() {
			sb.WriteString("z;")
			return nil
		}
		return encodeValue(sb, v.Elem().Interface())

	case reflect.Array:
		writeString(sb, 'A', v.Type().String())
		sb.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if err := encodeValue(sb, v.Index(i).Interface()); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				// Unexported fields take part in Go's struct equality
				// but cannot be read here, so a key would be lossy.
				return fmt.Errorf("%w: struct type %s has unexported fields", ErrUnhashable, t.String())
			}
		}
		writeString(sb, 'x', t.String())
		sb.WriteByte('(')
		for i := 0; i < t.NumField(); i++ {
			if err := encodeValue(sb, v.Field(i).Interface()); err != nil {
				return err
			}
		}
		sb.WriteByte(')')
		return nil

	default:
		return fmt.Errorf("%w: type %s", ErrUnhashable, v.Type().String())
	}
}

// encodeScalar encodes a reflected scalar by its underlying kind.
func encodeScalar(sb *strings.Builder, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Bool:
		if v.Bool() {
			sb.WriteString("b1;")
		} else {
			sb.WriteString("b0;")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		writeInt(sb, v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		writeUint(sb, v.Uint())
	case reflect.Float32, reflect.Float64:
		return writeFloat(sb, "f64", v.Float())
	case reflect.Complex64, reflect.Complex128:
		return writeComplex(sb, "c128", v.Complex())
	case reflect.String:
		writeString(sb, 's', v.String())
	}
	return nil
}

// writeString appends a length-prefixed token, so payloads never need
// escaping and concatenated tokens stay uniquely parseable.
func writeString(sb *strings.Builder, tag byte, s string) {
	sb.WriteByte(tag)
	sb.WriteString(strconv.Itoa(len(s)))
	sb.WriteByte(':')
	sb.WriteString(s)
	sb.WriteByte(';')
}

func writeInt(sb *strings.Builder, i int64) {
	sb.WriteByte('i')
	sb.WriteString(strconv.FormatInt(i, 10))
	sb.WriteByte(';')
}

func writeUint(sb *strings.Builder, u uint64) {
	sb.WriteByte('u')
	sb.WriteString(strconv.FormatUint(u, 10))
	sb.WriteByte(';')
}

func writeFloat(sb *strings.Builder, tag string, f float64) error {
	if math.IsNaN(f) {
		// NaN is never equal to anything, including itself; no stable
		// key can represent that.
		return fmt.Errorf("%w: NaN", ErrUnhashable)
	}
	if f == 0 {
		// Negative zero equals zero and must share its key.
		f = 0
	}
	sb.WriteString(tag)
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatFloat(f, 'x', -1, 64))
	sb.WriteByte(';')
	return nil
}

func writeComplex(sb *strings.Builder, tag string, c complex128) error {
	re, im := real(c), imag(c)
	if math.IsNaN(re) || math.IsNaN(im) {
		return fmt.Errorf("%w: NaN", ErrUnhashable)
	}
	if re == 0 {
		re = 0
	}
	if im == 0 {
		im = 0
	}
	sb.WriteString(tag)
	sb.WriteByte(':')
	sb.WriteString(strconv.FormatFloat(re, 'x', -1, 64))
	sb.WriteByte(',')
	sb.WriteString(strconv.FormatFloat(im, 'x', -1, 64))
	sb.WriteByte(';')
	return nil
}
