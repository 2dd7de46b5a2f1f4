package luahost

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/mailmount/mailmount/pkg/extension/event"
)

const (
	syncSummaryName = "sync_summary"
	sentMessageName = "sent_message"
)

func registerSyncSummaryType(ls *lua.LState) {
	registerRecordType(ls, syncSummaryName,
		func(ls *lua.LState, s *event.SyncSummary, field string) lua.LValue {
			switch field {
			case "account_id":
				return lua.LString(s.AccountID)
			case "email":
				return lua.LString(s.Email)
			case "folder":
				return lua.LString(s.Folder)
			case "fetched":
				return lua.LNumber(s.Fetched)
			case "time":
				return lua.LNumber(s.Time.Unix())
			}
			return lua.LNil
		})
}

func wrapSyncSummary(ls *lua.LState, val *event.SyncSummary) *lua.LUserData {
	return wrapUserData(ls, val, syncSummaryName)
}

func registerSentMessageType(ls *lua.LState) {
	registerRecordType(ls, sentMessageName,
		func(ls *lua.LState, s *event.SentMessage, field string) lua.LValue {
			switch field {
			case "account_id":
				return lua.LString(s.AccountID)
			case "message_id":
				return lua.LString(s.MessageID)
			case "from":
				return wrapMailAddress(ls, s.From)
			case "to":
				return wrapMailAddressList(ls, s.To)
			case "subject":
				return lua.LString(s.Subject)
			}
			return lua.LNil
		})
}

func wrapSentMessage(ls *lua.LState, val *event.SentMessage) *lua.LUserData {
	return wrapUserData(ls, val, sentMessageName)
}
