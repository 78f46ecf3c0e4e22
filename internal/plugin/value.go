package plugin

import (
	"fmt"
	"reflect"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

const valueTypeName = "hostpatch.value"

func registerCarrierType(L *lua.LState) {
	mt := L.NewTypeMetatable(valueTypeName)
	L.SetField(mt, "__index", L.NewFunction(valueIndex))
	L.SetField(mt, "__newindex", L.NewFunction(valueNewIndex))
	L.SetField(mt, "__tostring", L.NewFunction(valueString))
	L.SetField(mt, "__eq", L.NewFunction(valueEqual))
}

// wrap converts a Go value for Lua. Scalars become Lua scalars, slices become
// tables and everything else is userdata reached through reflection.
func wrap(L *lua.LState, v any) lua.LValue {
	if v == nil {
		return lua.LNil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return lua.LBool(rv.Bool())
	case reflect.String:
		return lua.LString(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return lua.LNumber(rv.Int())
	case reflect.Float32, reflect.Float64:
		return lua.LNumber(rv.Float())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return lua.LNil
		}
	case reflect.Slice:
		t := L.NewTable()
		for i := 0; i < rv.Len(); i++ {
			t.Append(wrap(L, rv.Index(i).Interface()))
		}
		return t
	}
	ud := L.NewUserData()
	ud.Value = v
	L.SetMetatable(ud, L.GetTypeMetatable(valueTypeName))
	return ud
}

// goName maps a Lua key to an exported Go name: "next_known_team" and
// "nextKnownTeam" both become "NextKnownTeam".
func goName(key string) string {
	var b strings.Builder
	for _, part := range strings.Split(key, "_") {
		if part == "" {
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

func valueIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)
	v, ok := lookup(ud.Value, key)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(wrap(L, v))
	return 1
}

// lookup reads key through a getter (Name or IsName) or, for plain structs,
// an exported field matched by json tag or name.
func lookup(v any, key string) (any, bool) {
	rv := reflect.ValueOf(v)
	name := goName(key)
	for _, m := range []string{name, "Is" + name} {
		meth := rv.MethodByName(m)
		if meth.IsValid() && meth.Type().NumIn() == 0 && meth.Type().NumOut() == 1 {
			return meth.Call(nil)[0].Interface(), true
		}
	}

	sv := reflect.Indirect(rv)
	if sv.Kind() != reflect.Struct {
		return nil, false
	}
	st := sv.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == key || strings.EqualFold(f.Name, name) {
			return sv.Field(i).Interface(), true
		}
	}
	return nil, false
}

// reserved names the acting identity. The bus alone assigns it, so the audit
// trail always blames the script that made a change.
var reserved = map[string]struct{}{
	"Caller":         {},
	"CallerIdentity": {},
}

func valueNewIndex(L *lua.LState) int {
	ud := L.CheckUserData(1)
	key := L.CheckString(2)
	lv := L.Get(3)

	name := goName(key)
	if _, ok := reserved[name]; ok {
		L.RaiseError("%s is reserved to the event bus", key)
		return 0
	}
	setter := reflect.ValueOf(ud.Value).MethodByName("Set" + name)
	if !setter.IsValid() || setter.Type().NumIn() != 1 || setter.Type().NumOut() != 0 {
		L.RaiseError("%s is read-only on %T", key, ud.Value)
		return 0
	}
	arg, err := fromLua(lv, setter.Type().In(0))
	if err != nil {
		L.RaiseError("%s: %v", key, err)
		return 0
	}
	setter.Call([]reflect.Value{arg})
	return 0
}

func fromLua(lv lua.LValue, t reflect.Type) (reflect.Value, error) {
	switch v := lv.(type) {
	case *lua.LNilType:
		return reflect.Zero(t), nil
	case lua.LBool:
		if t.Kind() == reflect.Bool {
			return reflect.ValueOf(bool(v)).Convert(t), nil
		}
	case lua.LNumber:
		switch t.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return reflect.ValueOf(int64(v)).Convert(t), nil
		case reflect.Float32, reflect.Float64:
			return reflect.ValueOf(float64(v)).Convert(t), nil
		}
	case lua.LString:
		if t.Kind() == reflect.String {
			return reflect.ValueOf(string(v)).Convert(t), nil
		}
	case *lua.LUserData:
		if v.Value != nil && reflect.TypeOf(v.Value).AssignableTo(t) {
			return reflect.ValueOf(v.Value), nil
		}
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", lv.Type(), t)
}

func valueString(L *lua.LState) int {
	ud := L.CheckUserData(1)
	L.Push(lua.LString(fmt.Sprint(ud.Value)))
	return 1
}

func valueEqual(L *lua.LState) int {
	a, b := L.CheckUserData(1), L.CheckUserData(2)
	eq := func() (eq bool) {
		defer func() {
			if recover() != nil {
				eq = false
			}
		}()
		return a.Value == b.Value
	}()
	L.Push(lua.LBool(eq))
	return 1
}
