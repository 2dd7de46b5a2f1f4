package luahost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/mailmount/mailmount/pkg/extension/event"
)

const categoryRequestName = "category_request"

func registerCategoryRequestType(ls *lua.LState) {
	registerRecordType(ls, categoryRequestName,
		func(ls *lua.LState, r *event.CategoryRequest, field string) lua.LValue {
			switch field {
			case "account_id":
				return lua.LString(r.AccountID)
			case "folder":
				return lua.LString(r.Folder)
			case "from":
				return wrapMailAddress(ls, r.From)
			case "subject":
				return lua.LString(r.Subject)
			case "category":
				return lua.LString(r.Category)
			}
			return lua.LNil
		})
}

func wrapCategoryRequest(ls *lua.LState, val *event.CategoryRequest) *lua.LUserData {
	return wrapUserData(ls, val, categoryRequestName)
}
