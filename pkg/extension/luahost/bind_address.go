package luahost

import (
	"net/mail"

	lua "github.com/yuin/gopher-lua"
)

const mailAddressName = "address"

func registerMailAddressType(ls *lua.LState) {
	mt := ls.NewTypeMetatable(mailAddressName)
	ls.SetGlobal(mailAddressName, mt)

	// Static attributes.
	ls.SetField(mt, "new", ls.NewFunction(newMailAddress))

	// Methods.
	ls.SetField(mt, "__index", ls.NewFunction(mailAddressIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(mailAddressNewIndex))
	ls.SetField(mt, "__tostring", ls.NewFunction(mailAddressToString))
}

func newMailAddress(ls *lua.LState) int {
	val := &mail.Address{
		Name:    ls.CheckString(1),
		Address: ls.CheckString(2),
	}
	ls.Push(wrapMailAddress(ls, val))

	return 1
}

// wrapMailAddress returns nil for a nil address so scripts can test `if msg.from then`.
func wrapMailAddress(ls *lua.LState, val *mail.Address) lua.LValue {
	if val == nil {
		return lua.LNil
	}
	return wrapUserData(ls, val, mailAddressName)
}

func wrapMailAddressList(ls *lua.LState, vals []*mail.Address) *lua.LTable {
	lt := ls.NewTable()
	for _, v := range vals {
		lt.Append(wrapMailAddress(ls, v))
	}
	return lt
}

func mailAddressIndex(ls *lua.LState) int {
	a := checkUserData[mail.Address](ls, 1, mailAddressName)
	field := ls.CheckString(2)

	switch field {
	case "name":
		ls.Push(lua.LString(a.Name))
	case "address":
		ls.Push(lua.LString(a.Address))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

func mailAddressNewIndex(ls *lua.LState) int {
	a := checkUserData[mail.Address](ls, 1, mailAddressName)
	index := ls.CheckString(2)

	switch index {
	case "name":
		a.Name = ls.CheckString(3)
	case "address":
		a.Address = ls.CheckString(3)
	default:
		ls.RaiseError("invalid index %q", index)
	}

	return 0
}

func mailAddressToString(ls *lua.LState) int {
	a := checkUserData[mail.Address](ls, 1, mailAddressName)
	ls.Push(lua.LString(a.String()))

	return 1
}
