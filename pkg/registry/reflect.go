package registry

import (
	"context"
	"reflect"

	"github.com/spiral/relayrpc/pkg/codec"
	"github.com/spiral/relayrpc/pkg/rpcerr"
)

// ReflectHandler adapts a plain Go value's exported methods into a Handler
// via reflection, standing in for the source's macro-generated handler
// shims (spec §9: "Code generation from an IDL is a legitimate but
// optional add-on" — this is that add-on, done at runtime instead of by a
// generator, since declaring-service codegen is explicitly out of scope
// for the engine itself).
//
// Eligible methods match one of two shapes:
//
//	func(Arg) (Reply, error)
//	func(context.Context, Arg) (Reply, error)
//
// the latter receiving the per-call cancellation context (spec §4.5).
type ReflectHandler struct {
	recv    reflect.Value
	methods map[string]reflectMethod
}

type reflectMethod struct {
	fn      reflect.Value // unbound method func, first arg is the receiver
	argType reflect.Type
	wantCtx bool
}

// NewReflectHandler builds a Handler from svc's exported methods matching
// one of the eligible shapes. svc is typically a pointer so methods may
// have pointer receivers.
func NewReflectHandler(svc interface{}) *ReflectHandler {
	v := reflect.ValueOf(svc)
	t := v.Type()

	methods := make(map[string]reflectMethod)
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if rm, ok := describeMethod(m.Func.Type()); ok {
			rm.fn = m.Func
			methods[m.Name] = rm
		}
	}
	return &ReflectHandler{recv: v, methods: methods}
}

var (
	errorType = reflect.TypeOf((*error)(nil)).Elem()
	ctxType   = reflect.TypeOf((*context.Context)(nil)).Elem()
)

func describeMethod(ft reflect.Type) (reflectMethod, bool) {
	// ft is the unbound method type: func(receiver, ...ins) (Reply, error)
	if ft.NumOut() != 2 || ft.Out(1) != errorType {
		return reflectMethod{}, false
	}
	switch ft.NumIn() {
	case 2:
		return reflectMethod{argType: ft.In(1), wantCtx: false}, true
	case 3:
		if ft.In(1) != ctxType {
			return reflectMethod{}, false
		}
		return reflectMethod{argType: ft.In(2), wantCtx: true}, true
	default:
		return reflectMethod{}, false
	}
}

// Call implements Handler.
func (h *ReflectHandler) Call(ctx context.Context, method string, dec *codec.Decoder) (interface{}, error) {
	rm, ok := h.methods[method]
	if !ok {
		return nil, rpcerr.MethodNotFound()
	}

	argIsPtr := rm.argType.Kind() == reflect.Ptr
	var argVal reflect.Value
	if argIsPtr {
		argVal = reflect.New(rm.argType.Elem())
	} else {
		argVal = reflect.New(rm.argType)
	}

	if dec != nil {
		if err := dec.Decode(argVal.Interface()); err != nil {
			return nil, rpcerr.InvalidParams()
		}
	}

	var callArg reflect.Value
	if argIsPtr {
		callArg = argVal
	} else {
		callArg = argVal.Elem()
	}

	args := make([]reflect.Value, 0, 3)
	args = append(args, h.recv)
	if rm.wantCtx {
		args = append(args, reflect.ValueOf(ctx))
	}
	args = append(args, callArg)

	out := rm.fn.Call(args)
	reply := out[0].Interface()
	if errVal := out[1].Interface(); errVal != nil {
		return nil, errVal.(error)
	}
	return reply, nil
}
