package luahost

import (
	lua "github.com/yuin/gopher-lua"
)

// registerRecordType registers a read-only userdata type whose fields are produced by get. Unknown
// fields read as nil.
func registerRecordType[T any](
	ls *lua.LState,
	typeName string,
	get func(ls *lua.LState, val *T, field string) lua.LValue,
) {
	mt := ls.NewTypeMetatable(typeName)
	ls.SetField(mt, "__index", ls.NewFunction(func(ls *lua.LState) int {
		val := checkUserData[T](ls, 1, typeName)
		ls.Push(get(ls, val, ls.CheckString(2)))
		return 1
	}))
	ls.SetField(mt, "__newindex", ls.NewFunction(func(ls *lua.LState) int {
		ls.RaiseError("%s is read-only", typeName)
		return 0
	}))
}
