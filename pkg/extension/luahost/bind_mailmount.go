package luahost

import (
	"errors"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

const (
	mailmountName       = "mailmount"
	mailmountBeforeName = "mailmount_before"
	mailmountAfterName  = "mailmount_after"
)

// Mailmount is the Go value behind the mailmount global; scripts assign event functions to it.
type Mailmount struct {
	Before MailmountBeforeFuncs
	After  MailmountAfterFuncs
}

// MailmountBeforeFuncs holds the synchronous event functions.
type MailmountBeforeFuncs struct {
	MessageCategorized *lua.LFunction
}

// MailmountAfterFuncs holds the asynchronous event functions.
type MailmountAfterFuncs struct {
	MessageStored *lua.LFunction
	AccountSynced *lua.LFunction
	MessageSent   *lua.LFunction
}

func registerMailmountTypes(ls *lua.LState) {
	mt := ls.NewTypeMetatable(mailmountName)
	ls.SetField(mt, "__index", ls.NewFunction(mailmountIndex))

	mt = ls.NewTypeMetatable(mailmountBeforeName)
	ls.SetField(mt, "__index", ls.NewFunction(mailmountBeforeIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(mailmountBeforeNewIndex))

	mt = ls.NewTypeMetatable(mailmountAfterName)
	ls.SetField(mt, "__index", ls.NewFunction(mailmountAfterIndex))
	ls.SetField(mt, "__newindex", ls.NewFunction(mailmountAfterNewIndex))

	ls.SetGlobal(mailmountName, wrapUserData(ls, &Mailmount{}, mailmountName))
}

func wrapUserData(ls *lua.LState, val any, typeName string) *lua.LUserData {
	ud := ls.NewUserData()
	ud.Value = val
	ls.SetMetatable(ud, ls.GetTypeMetatable(typeName))
	return ud
}

func getMailmount(ls *lua.LState) (*Mailmount, error) {
	lv := ls.GetGlobal(mailmountName)
	if lv == lua.LNil {
		return nil, errors.New("mailmount object was nil")
	}

	ud, ok := lv.(*lua.LUserData)
	if !ok {
		return nil, fmt.Errorf("mailmount object was type %s instead of UserData", lv.Type())
	}

	val, ok := ud.Value.(*Mailmount)
	if !ok {
		return nil, fmt.Errorf("mailmount object (%v) could not be cast", ud.Value)
	}

	return val, nil
}

func checkUserData[T any](ls *lua.LState, pos int, typeName string) *T {
	ud := ls.CheckUserData(pos)
	if val, ok := ud.Value.(*T); ok {
		return val
	}
	ls.ArgError(pos, typeName+" expected")
	return nil
}

// mailmount getter.
func mailmountIndex(ls *lua.LState) int {
	mm := checkUserData[Mailmount](ls, 1, mailmountName)
	field := ls.CheckString(2)

	switch field {
	case "before":
		ls.Push(wrapUserData(ls, &mm.Before, mailmountBeforeName))
	case "after":
		ls.Push(wrapUserData(ls, &mm.After, mailmountAfterName))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mailmount.before getter.
func mailmountBeforeIndex(ls *lua.LState) int {
	before := checkUserData[MailmountBeforeFuncs](ls, 1, mailmountBeforeName)
	field := ls.CheckString(2)

	switch field {
	case "message_categorized":
		ls.Push(funcOrNil(before.MessageCategorized))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mailmount.before setter.
func mailmountBeforeNewIndex(ls *lua.LState) int {
	before := checkUserData[MailmountBeforeFuncs](ls, 1, mailmountBeforeName)
	index := ls.CheckString(2)

	switch index {
	case "message_categorized":
		before.MessageCategorized = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid mailmount.before index %q", index)
	}

	return 0
}

// mailmount.after getter.
func mailmountAfterIndex(ls *lua.LState) int {
	after := checkUserData[MailmountAfterFuncs](ls, 1, mailmountAfterName)
	field := ls.CheckString(2)

	switch field {
	case "message_stored":
		ls.Push(funcOrNil(after.MessageStored))
	case "account_synced":
		ls.Push(funcOrNil(after.AccountSynced))
	case "message_sent":
		ls.Push(funcOrNil(after.MessageSent))
	default:
		ls.Push(lua.LNil)
	}

	return 1
}

// mailmount.after setter.
func mailmountAfterNewIndex(ls *lua.LState) int {
	after := checkUserData[MailmountAfterFuncs](ls, 1, mailmountAfterName)
	index := ls.CheckString(2)

	switch index {
	case "message_stored":
		after.MessageStored = ls.CheckFunction(3)
	case "account_synced":
		after.AccountSynced = ls.CheckFunction(3)
	case "message_sent":
		after.MessageSent = ls.CheckFunction(3)
	default:
		ls.RaiseError("invalid mailmount.after index %q", index)
	}

	return 0
}

func funcOrNil(f *lua.LFunction) lua.LValue {
	if f == nil {
		return lua.LNil
	}

	return f
}
