package luahost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/mailmount/mailmount/pkg/extension/event"
)

const messageMetadataName = "message_metadata"

func registerMessageMetadataType(ls *lua.LState) {
	registerRecordType(ls, messageMetadataName, messageMetadataField)
}

func wrapMessageMetadata(ls *lua.LState, val *event.MessageMetadata) *lua.LUserData {
	return wrapUserData(ls, val, messageMetadataName)
}

// Gets a field value from MessageMetadata user object.  This emulates a Lua table,
// allowing `msg.subject` instead of a Lua object syntax of `msg:subject()`.
func messageMetadataField(ls *lua.LState, m *event.MessageMetadata, field string) lua.LValue {
	switch field {
	case "account_id":
		return lua.LString(m.AccountID)
	case "id":
		return lua.LString(m.ID)
	case "folder":
		return lua.LString(m.Folder)
	case "from":
		return wrapMailAddress(ls, m.From)
	case "to":
		return wrapMailAddressList(ls, m.To)
	case "date":
		return lua.LNumber(m.Date.Unix())
	case "subject":
		return lua.LString(m.Subject)
	case "size":
		return lua.LNumber(m.Size)
	case "category":
		return lua.LString(m.Category)
	case "read":
		return lua.LBool(m.Read)
	}
	return lua.LNil
}
